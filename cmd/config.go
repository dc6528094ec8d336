package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/dealbook/internal/config"
	"github.com/marcus/dealbook/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage dealbook configuration",
	Long:    `Read and write ~/.config/dealbook/config.json. DEALBOOK_* environment variables override it.`,
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value (empty value clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]

		dir, cfg, err := loadConfig()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if err := cfg.Set(key, val); err != nil {
			output.Error("%v", err)
			if strings.HasPrefix(err.Error(), "unknown config key") {
				output.Info("Valid keys: %s", strings.Join(config.Keys(), ", "))
			}
			return err
		}
		if err := config.Save(dir, cfg); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		output.Success("%s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value as stored in config.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		val, err := cfg.Get(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Info("%s", val)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show effective settings after environment overrides",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		effective := map[string]string{
			"principal":              cfg.GetPrincipal(),
			"store.url":              cfg.GetStoreURL(),
			"store.debounce":         cfg.GetDebounce().String(),
			"store.timeout":          cfg.GetTimeout().String(),
			"store.refresh_interval": cfg.GetRefreshInterval().String(),
			"activity_limit":         fmt.Sprint(cfg.GetActivityLimit()),
			"log_level":              cfg.GetLogLevel(),
		}
		for _, k := range config.Keys() {
			output.Info("%-24s %s", k, effective[k])
		}
		return nil
	},
}

func loadConfig() (string, *config.Config, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	return dir, cfg, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
}
