package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/package_guard/internal/extract"
	"github.com/triage-ai/palisade/package_guard/internal/hook"
)

// checkSessionID marks audit records produced from the terminal.
const checkSessionID = "cli"

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <command>",
		Short: "Evaluate a shell command without an agent",
		Example: `  package-guard check "npm install left-pad"
  package-guard check --json yarn add lodash`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := opts.load()
			defer logger.Sync() //nolint:errcheck // best-effort flush

			writer, closeWriter := buildWriter(cfg, logger)
			defer closeWriter()

			command := strings.Join(args, " ")
			input, err := json.Marshal(map[string]string{"command": command})
			if err != nil {
				return err
			}
			ev := &hook.Event{
				SessionID: checkSessionID,
				ToolName:  cfg.ShellTools[0],
				ToolInput: input,
			}

			gate := buildGate(cfg, buildSource(cfg, logger), writer, logger)
			d := gate.Evaluate(cmd.Context(), ev)

			out := cmd.OutOrStdout()
			if asJSON {
				return hook.Emit(out, d)
			}
			printCheck(out, extract.Default().Extract(command), d)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the hook decision document instead of text")
	return cmd
}

func printCheck(w io.Writer, res extract.Result, d hook.Decision) {
	switch res.Kind {
	case extract.KindPackageAdd:
		for _, ref := range res.Refs {
			fmt.Fprintf(w, "package:  %s %s (via %s)\n", ref.Ecosystem, ref.Name, ref.Manager)
		}
	case extract.KindLockfileOnly:
		fmt.Fprintln(w, "package:  none (lockfile install)")
	default:
		fmt.Fprintln(w, "package:  none")
	}

	fmt.Fprintf(w, "decision: %s\n", decisionLabel(d.Type))
	if d.Reason != "" {
		fmt.Fprintf(w, "reason:   %s\n", d.Reason)
	}
}

func decisionLabel(t hook.DecisionType) string {
	switch t {
	case hook.DecisionDeny:
		return color.New(color.FgRed, color.Bold).Sprint("DENY")
	case hook.DecisionAsk:
		return color.New(color.FgYellow, color.Bold).Sprint("ASK")
	default:
		return color.New(color.FgGreen, color.Bold).Sprint("ALLOW")
	}
}
