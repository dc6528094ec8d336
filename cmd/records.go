package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/output"
)

var addCmd = &cobra.Command{
	Use:     "add <category> [key=value...]",
	Aliases: []string{"new", "create"},
	Short:   "Add a record to a category",
	Long: `Add a record to a category (deals, properties, contacts, tasks, or any other name).
The new record gets an id and timestamps; the id is printed on success.

Values parse as JSON when valid, so units=4 stores a number and tags=["a","b"] a list.`,
	Example: `  dealbook add deals name="Main St" value=450000
  dealbook add contacts -f fullName="Ada Park" -f phone=555-0100`,
	GroupID: "core",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := args[0]
		payload, err := collectFields(cmd.Flags(), args[1:])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		return runMutation(cmd, func(a *app) error {
			e := a.mgr.Add(category, payload)
			output.Success("ADDED %s %s", e.ID(), e.DisplayName())
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <category> <id> [key=value...]",
	Aliases: []string{"edit", "set"},
	Short:   "Change fields of a record",
	Long:    `Shallow-merge the given fields into a record and stamp its updatedAt.`,
	Example: `  dealbook update deals dea_ab12cd34 stage=closed`,
	GroupID: "core",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, id := args[0], args[1]
		patch, err := collectFields(cmd.Flags(), args[2:])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if len(patch) == 0 {
			err := fmt.Errorf("nothing to update (pass key=value)")
			output.Error("%v", err)
			return err
		}

		return runMutation(cmd, func(a *app) error {
			if err := requireEntity(a, category, id); err != nil {
				return err
			}
			e, _ := a.mgr.Update(category, id, patch)
			output.Success("UPDATED %s %s", e.ID(), e.DisplayName())
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <category> <id>",
	Aliases: []string{"rm", "remove"},
	Short:   "Delete a record",
	GroupID: "core",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, id := args[0], args[1]
		return runMutation(cmd, func(a *app) error {
			if err := requireEntity(a, category, id); err != nil {
				return err
			}
			a.mgr.Delete(category, id)
			output.Success("DELETED %s", id)
			return nil
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings [key=value...]",
	Short: "Show or change settings",
	Long: `Without arguments, print the settings. With key=value arguments, merge them into the
settings and save.`,
	Example: `  dealbook settings
  dealbook settings currency=EUR dateFormat=DD/MM/YYYY`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := collectFields(cmd.Flags(), args)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if len(patch) == 0 {
			a, err := readDoc(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			output.Print(output.FormatSettings(a.mgr.Snapshot().Settings))
			return nil
		}

		return runMutation(cmd, func(a *app) error {
			a.mgr.UpdateSettings(patch)
			output.Success("UPDATED settings: %s", joinKeys(patch))
			return nil
		})
	},
}

// requireEntity reports not found without touching the store, so a miss never
// schedules a push.
func requireEntity(a *app, category, id string) error {
	if findEntity(a.mgr.Snapshot(), category, id) == nil {
		err := fmt.Errorf("%s not found in %s", id, category)
		output.Error("%v", err)
		return err
	}
	return nil
}

func findEntity(doc *models.Document, category, id string) models.Entity {
	for _, e := range doc.Categories[category] {
		if e.ID() == id {
			return e
		}
	}
	return nil
}

func joinKeys(m map[string]any) string {
	return strings.Join(sortedFieldKeys(m), ", ")
}

func init() {
	addFieldsFlag(addCmd.Flags())
	addFieldsFlag(updateCmd.Flags())
	addFieldsFlag(settingsCmd.Flags())

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(settingsCmd)
}
