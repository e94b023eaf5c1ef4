package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-go/livenotes/pkg/core"
	"github.com/vango-go/livenotes/pkg/core/types"
	"github.com/vango-go/livenotes/pkg/history"
)

const dateLayout = "2006-01-02 15:04"

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and remove saved sessions",
	}
	cmd.AddCommand(newHistoryListCmd(a), newHistoryShowCmd(a), newHistoryRmCmd(a))
	return cmd
}

// withHistory opens the configured store for the duration of fn.
func withHistory(cmd *cobra.Command, a *app, fn func(*history.Store) error) error {
	store, closeKV, err := openHistory(cmd.Context(), a.cfg, a.logger, nil)
	if err != nil {
		return err
	}
	defer closeKV()
	return fn(store)
}

func newHistoryListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, a, func(store *history.Store) error {
				records := store.List()
				if records == nil {
					records = []types.SessionRecord{}
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return printHistoryList(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, a, func(store *history.Store) error {
				rec, ok := store.Get(args[0])
				if !ok {
					return core.NewNotFoundError(fmt.Sprintf("session %q not found", args[0]))
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), rec)
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newHistoryRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, a, func(store *history.Store) error {
				ok, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return core.NewNotFoundError(fmt.Sprintf("session %q not found", args[0]))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func printHistoryList(w io.Writer, records []types.SessionRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No saved sessions.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tNOTES\tTITLE")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", rec.ID, rec.CreatedAt.Local().Format(dateLayout), len(rec.Notes), rec.Title)
	}
	return tw.Flush()
}

func printRecord(w io.Writer, rec types.SessionRecord) {
	fmt.Fprintf(w, "# %s\n\n", rec.Title)
	fmt.Fprintf(w, "%s  ·  %s\n", rec.ID, rec.CreatedAt.Local().Format(dateLayout))
	if report := strings.TrimSpace(rec.Report); report != "" {
		fmt.Fprintf(w, "\n%s\n", report)
	}
	if len(rec.Notes) > 0 {
		fmt.Fprintf(w, "\n## Notas\n\n%s", types.NotesText(rec.Notes))
	}
	if t := strings.TrimSpace(rec.Transcript); t != "" {
		fmt.Fprintf(w, "\n## Transcripción\n\n%s\n", t)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
