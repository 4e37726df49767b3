package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"libratrack/pkg/history"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Inspect locally stored chat history",
}

// withHistory opens the local store for the duration of fn.
func withHistory(fn func(store *history.BoltStore) error) error {
	store, err := history.OpenBoltStore(historyPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.BoltStore) error {
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return output(cmd, summaries)
		})
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show every turn of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.BoltStore) error {
			conv, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(cmd, conv)
		})
	},
}

var conversationsClearCmd = &cobra.Command{
	Use:   "clear <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.BoltStore) error {
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared conversation %s\n", args[0])
			return nil
		})
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsClearCmd)
}
