package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/triage-ai/palisade/package_guard/internal/hook"
)

func newHookCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Answer one PreToolUse event (stdin JSON in, decision JSON out)",
		Long: `hook reads a single PreToolUse event from stdin and writes exactly one
permission decision to stdout. It always exits 0; failures resolve to allow
or ask and are reported on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := &emitTracker{w: cmd.OutOrStdout()}
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "package-guard: hook panicked, allowing: %v\n", r)
					if !out.wrote {
						_ = hook.Emit(out, hook.Allow(""))
					}
				}
			}()

			cfg, logger := opts.load()
			defer logger.Sync() //nolint:errcheck // best-effort flush

			writer, closeWriter := buildWriter(cfg, logger)
			defer closeWriter()

			gate := buildGate(cfg, buildSource(cfg, logger), writer, logger)
			gate.Handle(cmd.Context(), cmd.InOrStdin(), out)
			return nil
		},
	}
}

// emitTracker records whether a decision document reached stdout.
type emitTracker struct {
	w     io.Writer
	wrote bool
}

func (t *emitTracker) Write(p []byte) (int, error) {
	t.wrote = true
	return t.w.Write(p)
}
