package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/yllada/openvpn3-go/journal"
)

var errJournalDisabled = errors.New("journal is disabled in the configuration")

func newJournalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the local session event journal",
	}
	cmd.AddCommand(newJournalShowCmd(a), newJournalPruneCmd(a))
	return cmd
}

func newJournalShowCmd(a *app) *cobra.Command {
	var opts struct {
		session string
		kind    string
		since   string
		limit   int
	}
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recent journal entries",
		Long: `Show recent journal entries, newest first.

Examples:
  ovpn3 journal show --limit 20
  ovpn3 journal show --kind status --since 2d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j := a.events()
			if j == nil {
				return errJournalDisabled
			}
			q := journal.Query{Kind: journal.Kind(opts.kind), Limit: opts.limit}
			switch opts.kind {
			case "", string(journal.KindStatus), string(journal.KindLog), string(journal.KindAttention),
				string(journal.KindSession), string(journal.KindHealth):
			default:
				return fmt.Errorf("unknown kind %q (status, log, attention, session, health)", opts.kind)
			}
			if opts.session != "" {
				q.Session = dbus.ObjectPath(opts.session)
			}
			if opts.since != "" {
				age, err := parseAge(opts.since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				q.Since = time.Now().Add(-age)
			}

			entries, err := j.Recent(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No journal entries.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Time.Local().Format("2006-01-02 15:04:05"),
					orDash(short(e.Session)),
					string(e.Kind),
					e.Code,
					e.Message,
				})
			}
			printTable(out, []string{"TIME", "SESSION", "KIND", "CODE", "MESSAGE"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.session, "session", "", "Only entries of this session object path")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Only entries of this kind")
	cmd.Flags().StringVar(&opts.since, "since", "", "Only entries newer than this age (e.g. 90m, 2d, 1w)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "Maximum number of entries")
	return cmd
}

func newJournalPruneCmd(a *app) *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		Long: `Delete journal entries older than the given age.

Examples:
  ovpn3 journal prune --older-than 30d
  ovpn3 journal prune --older-than 2w`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than: %w", err)
			}
			j := a.events()
			if j == nil {
				return errJournalDisabled
			}
			n, err := j.Prune(cmd.Context(), time.Now().Add(-age))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries older than %s.\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Age of the entries to delete (e.g. 48h, 30d, 2w)")
	return cmd
}
