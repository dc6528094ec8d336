package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/dealbook/internal/identity"
	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/output"
	"github.com/marcus/dealbook/internal/serverdb"
	"github.com/marcus/dealbook/internal/syncclient"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	Short:   "Pull the remote document",
	Long:    `Pull the principal's document. If none exists yet, create it from the empty defaults.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if a.principal == "" {
			err := fmt.Errorf("no principal (use --principal or 'dealbook config set principal <key>')")
			output.Error("%v", err)
			return err
		}
		if _, err := a.connect(cmd.Context()); err != nil {
			output.Error("%v", err)
			return err
		}

		doc := a.mgr.Snapshot()
		total := 0
		for _, list := range doc.Categories {
			total += len(list)
		}
		output.Success("PULLED %s: %d records, %d activity entries", a.principal, total, len(doc.ActivityLog))
		if by := doc.SyncMeta.LastUpdatedBy; by != nil && doc.SyncMeta.LastUpdatedAt != nil {
			output.Info("Last saved by %s, %s", *by, output.FormatTimeAgo(*doc.SyncMeta.LastUpdatedAt))
		}
		return nil
	},
}

// statusReport is the machine-readable form of `dealbook status`.
type statusReport struct {
	ClientID     string         `json:"clientId"`
	IDStorage    string         `json:"idStorage"`
	Principal    string         `json:"principal"`
	Store        string         `json:"store"`
	StoreHealthy *bool          `json:"storeHealthy,omitempty"`
	Hydrated     bool           `json:"hydrated"`
	Baseline     *time.Time     `json:"baseline"`
	LastSavedBy  *string        `json:"lastSavedBy"`
	LastSavedAt  *time.Time     `json:"lastSavedAt"`
	Records      map[string]int `json:"records"`
	Error        string         `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show sync status",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		rep := statusReport{
			ClientID:  a.ids.ClientID(),
			IDStorage: describeStorage(a),
			Principal: a.principal,
			Store:     a.storeURL,
			Records:   map[string]int{},
		}
		if client, ok := a.remote.(*syncclient.Client); ok {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			_, herr := client.HealthCheck(ctx)
			cancel()
			healthy := herr == nil
			rep.StoreHealthy = &healthy
		}
		if _, err := a.connect(cmd.Context()); err != nil {
			rep.Error = err.Error()
		}

		st := a.mgr.Status()
		doc := a.mgr.Snapshot()
		rep.Hydrated = st.Hydrated
		rep.Baseline = st.Baseline
		rep.LastSavedBy = doc.SyncMeta.LastUpdatedBy
		rep.LastSavedAt = doc.SyncMeta.LastUpdatedAt
		for c, list := range doc.Categories {
			rep.Records[c] = len(list)
		}

		if jsonOut {
			return output.JSON(rep)
		}
		printStatus(rep, doc)
		return nil
	},
}

func printStatus(rep statusReport, doc *models.Document) {
	output.Info("Client:     %s (%s)", rep.ClientID, rep.IDStorage)
	if rep.Principal == "" {
		output.Info("Principal:  (not connected)")
	} else {
		output.Info("Principal:  %s", rep.Principal)
	}
	store := rep.Store
	if store == "" {
		store = "(none)"
	}
	if rep.StoreHealthy != nil {
		if *rep.StoreHealthy {
			store += " (reachable)"
		} else {
			store += " (unreachable)"
		}
	}
	output.Info("Store:      %s", store)
	if rep.Error != "" {
		output.Warning("%s", rep.Error)
	}
	if rep.Baseline != nil {
		output.Info("Last pull:  %s", rep.Baseline.Local().Format(time.DateTime))
	} else {
		output.Info("Last pull:  never")
	}
	if rep.LastSavedBy != nil && rep.LastSavedAt != nil {
		output.Info("Last save:  %s by %s", output.FormatTimeAgo(*rep.LastSavedAt), *rep.LastSavedBy)
	}
	output.Print(output.SectionHeader("records"))
	for _, c := range doc.CategoryNames() {
		output.Info("  %-12s %d", c, rep.Records[c])
	}
}

func describeStorage(a *app) string {
	switch s := a.storage.(type) {
	case *identity.MemoryStorage:
		return "throwaway"
	case *identity.FileStorage:
		if a.ids.Persisted() {
			return "saved in " + s.Path()
		}
	}
	return "not persisted"
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Short:   "Print this device's client id",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		output.Info("%s", a.ids.ClientID())
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			output.Info("storage: %s", describeStorage(a))
			if a.principal != "" {
				output.Info("principal: %s", a.principal)
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Show recent saves of the remote document",
	Long:    `List recent writes of the principal's document as recorded by the store server or SQLite store.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := openApp(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()
		if a.principal == "" {
			err := fmt.Errorf("no principal (use --principal)")
			output.Error("%v", err)
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
		defer cancel()

		var writes []serverdb.WriteEntry
		switch r := a.remote.(type) {
		case *syncclient.Client:
			entries, err := r.Writes(ctx, a.principal, limit)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			for _, e := range entries {
				writes = append(writes, serverdb.WriteEntry(e))
			}
		case *serverdb.ServerDB:
			writes, err = r.RecentWrites(ctx, a.principal, limit)
			if err != nil {
				output.Error("%v", err)
				return err
			}
		default:
			err := fmt.Errorf("store %q keeps no write history", a.storeURL)
			output.Error("%v", err)
			return err
		}

		if len(writes) == 0 {
			output.Info("No saves recorded for %s", a.principal)
			return nil
		}
		for _, w := range writes {
			writer := w.Writer
			if writer == "" {
				writer = "-"
			}
			if writer == a.ids.ClientID() {
				writer += " (this device)"
			}
			output.Info("rev %-4d %s  %6d bytes  %s", w.Revision, w.CreatedAt.Local().Format(time.DateTime), w.Bytes, writer)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	whoamiCmd.Flags().BoolP("verbose", "v", false, "also show where the id is stored")
	historyCmd.Flags().IntP("limit", "n", 20, "number of saves to show")

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(historyCmd)
}
