package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/dealbook/internal/models"
	"github.com/marcus/dealbook/internal/output"
	dsync "github.com/marcus/dealbook/internal/sync"
	"github.com/marcus/dealbook/internal/tui/monitor"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"monitor"},
	Short:   "Live view of the document",
	Long: `Launch a live-updating view of the principal's document. It re-renders on every
change and, with --interval, re-pulls the remote copy while there are no unsaved changes.

Key bindings:
  Tab/Shift+Tab  Switch panels
  h/l, ←/→       Previous/next category
  j/k, ↓/↑       Scroll
  r              Pull now
  ?              Toggle help
  q              Quit`,
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if _, err := a.connect(cmd.Context()); err != nil {
			// The view still opens; 'r' retries the pull.
			output.Warning("%v", err)
		}

		model := monitor.NewModel(a.mgr, time.Second)
		model.RefreshTimeout = a.timeout
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		unsubscribe := a.mgr.Subscribe(func(_ *models.Document, category string) {
			go p.Send(monitor.DocChangedMsg{Category: category, At: time.Now()})
		})
		defer unsubscribe()
		unPush := a.mgr.OnPush(func(res dsync.PushResult) {
			go p.Send(monitor.PushMsg{Result: res})
		})
		defer unPush()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go a.mgr.Run(ctx)

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running watch: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 0, "re-pull interval while clean (default: config store.refresh_interval, 0 = off)")
}
