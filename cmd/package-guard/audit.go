package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/package_guard/internal/storage"
)

const defaultAuditLimit = 50

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded security decisions",
	}
	cmd.AddCommand(newAuditListCmd(opts))
	return cmd
}

func newAuditListCmd(opts *rootOptions) *cobra.Command {
	var (
		month     string
		eventType string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		Example: `  package-guard audit list
  package-guard audit list --month 2026-10 --type block`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := storage.EventFilter{Limit: limit}
			if month != "" {
				m, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("invalid --month %q: want YYYY-MM", month)
				}
				filter.Month = m
			}
			if eventType != "" {
				t, err := parseEventType(eventType)
				if err != nil {
					return err
				}
				filter.Type = t
			}

			cfg, logger := opts.load()
			defer logger.Sync() //nolint:errcheck // best-effort flush

			root := storage.ResolveRoot(cfg.AuditDir)
			events, err := storage.ReadEvents(root, filter)
			if err != nil {
				return fmt.Errorf("read audit records under %s: %w", root, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if events == nil {
					events = []storage.SecurityEvent{}
				}
				return enc.Encode(events)
			}
			printEvents(out, root, events)
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Only records from this month (YYYY-MM)")
	cmd.Flags().StringVar(&eventType, "type", "", "Only records of this type (block, warn, allow, error)")
	cmd.Flags().IntVar(&limit, "limit", defaultAuditLimit, "Maximum records to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func parseEventType(s string) (storage.EventType, error) {
	switch t := storage.EventType(s); t {
	case storage.EventBlock, storage.EventWarn, storage.EventAllow, storage.EventError:
		return t, nil
	}
	return "", fmt.Errorf("invalid --type %q: want block, warn, allow or error", s)
}

func printEvents(w io.Writer, root string, events []storage.SecurityEvent) {
	if len(events) == 0 {
		fmt.Fprintf(w, "no audit records under %s\n", root)
		return
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s  %s  %-30s  %-10s  %s\n",
			e.Timestamp.UTC().Format(time.RFC3339),
			eventTypeLabel(e.EventType),
			e.Ecosystem+"/"+e.Package,
			e.ActionTaken,
			e.Reason,
		)
	}
}

func eventTypeLabel(t storage.EventType) string {
	label := fmt.Sprintf("%-5s", t)
	switch t {
	case storage.EventBlock:
		return color.RedString(label)
	case storage.EventWarn:
		return color.YellowString(label)
	case storage.EventError:
		return color.MagentaString(label)
	default:
		return color.GreenString(label)
	}
}
