package main

import (
	"os"

	"github.com/spf13/cobra"

	"libratrack/pkg/client"
	"libratrack/pkg/config"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string

	cfg    *config.Config
	format client.OutputFormat
)

var rootCmd = &cobra.Command{
	Use:   "libractl",
	Short: "Command line client for the LibraTrack gateway",
	Long: `libractl talks to the LibraTrack gateway.

It manages the catalog and checkouts, and runs an interactive chat with the
library assistant. Chat history is kept locally.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if format, err = client.ParseOutputFormat(outputFormat); err != nil {
			return err
		}
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
		if serverURL != "" {
			cfg.Client.GatewayURL = serverURL
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./libratrack.yaml or ~/.libratrack/libratrack.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", "", "gateway URL (overrides client.gateway_url)",
	)

	rootCmd.AddCommand(booksCmd, checkoutsCmd, chatCmd, conversationsCmd)
}

func newClient() *client.Client {
	return client.New(cfg.Client.GatewayURL, cfg.Client.Timeout)
}

func output(cmd *cobra.Command, data any) error {
	return client.OutputTo(cmd.OutOrStdout(), format, data)
}

// historyPath expands $HOME and other variables in the configured path.
func historyPath() string {
	return os.ExpandEnv(cfg.Client.HistoryPath)
}
