package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/output"
)

var showCmd = &cobra.Command{
	Use:     "show [category [id]]",
	Aliases: []string{"list", "ls"},
	Short:   "Show records",
	Long: `Without arguments, list every category. With a category, list its records newest
first. With a category and an id, print every field of that record.`,
	GroupID: "query",
	Args:    cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(formatStr)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		a, err := readDoc(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		doc := a.mgr.Snapshot()

		switch len(args) {
		case 0:
			return showDocument(doc, format)
		case 1:
			return showCategory(doc, args[0], format)
		}

		e := findEntity(doc, args[0], args[1])
		if e == nil {
			err := fmt.Errorf("%s not found in %s", args[1], args[0])
			if format != output.FormatText {
				output.JSONError(output.ErrCodeNotFound, err.Error())
			} else {
				output.Error("%v", err)
			}
			return err
		}
		switch format {
		case output.FormatJSON:
			return output.JSON(e)
		case output.FormatYAML:
			return output.YAML(e)
		}
		output.Print(output.FormatEntityLong(args[0], e))
		return nil
	},
}

func showDocument(doc *models.Document, format output.Format) error {
	switch format {
	case output.FormatJSON:
		return output.JSON(doc)
	case output.FormatYAML:
		return output.YAML(doc)
	}
	width := output.TerminalWidth(80)
	for _, c := range doc.CategoryNames() {
		output.Print(output.FormatCategory(c, doc.Categories[c], width))
	}
	output.Print(output.SectionHeader("settings"))
	output.Print(output.IndentString(strings.TrimSuffix(output.FormatSettings(doc.Settings), "\n"), 2))
	output.Print("\n")
	return nil
}

func showCategory(doc *models.Document, category string, format output.Format) error {
	entities := doc.Categories[category]
	if entities == nil {
		entities = []models.Entity{}
	}
	switch format {
	case output.FormatJSON:
		return output.JSON(entities)
	case output.FormatYAML:
		return output.YAML(entities)
	}
	output.Print(output.FormatCategory(category, entities, output.TerminalWidth(80)))
	return nil
}

var activityCmd = &cobra.Command{
	Use:     "activity",
	Aliases: []string{"log"},
	Short:   "Show recent activity, newest first",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(formatStr)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := readDoc(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.mgr.Snapshot().ActivityLog
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		switch format {
		case output.FormatJSON:
			return output.JSON(entries)
		case output.FormatYAML:
			return output.YAML(entries)
		}
		if len(entries) == 0 {
			output.Info("No activity")
			return nil
		}
		for _, e := range entries {
			output.Info("%s", output.FormatActivity(e))
		}
		return nil
	},
}

func init() {
	showCmd.Flags().String("format", "text", "output format: text, json or yaml")
	activityCmd.Flags().String("format", "text", "output format: text, json or yaml")
	activityCmd.Flags().IntP("limit", "n", 20, "number of entries to show (0 = all)")

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(activityCmd)
}
