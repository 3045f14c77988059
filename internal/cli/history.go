package cli

import (
	"encoding/json"
	"fmt"

	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the prediction history",
	}
	cmd.AddCommand(newHistoryShowCmd(a))
	cmd.AddCommand(newHistoryResolveCmd(a))
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "show [source]",
		Short:     "Print the history, or the records of one source, as JSON",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"upload", "live", "word", "quiz"},
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.historyStore().Init()
			var v any = log
			if len(args) == 1 {
				src, err := history.ParseSource(args[0])
				if err != nil {
					return err
				}
				v = log.Records(src)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
}

func newHistoryResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <source> <path>",
		Short: "Find the capture file a history record refers to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := history.ParseSource(args[0])
			if err != nil {
				return err
			}
			path, ok := a.historyStore().ResolveImagePath(args[1], src)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "image unavailable")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
