package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/palisade/package_guard/internal/extract"
	"github.com/triage-ai/palisade/package_guard/internal/hook"
	"github.com/triage-ai/palisade/package_guard/internal/reputation"
	"github.com/triage-ai/palisade/package_guard/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// DefaultShellTool is the host tool that runs shell commands.
const DefaultShellTool = "Bash"

// GateConfig wires a Gate.
type GateConfig struct {
	Extractor     *extract.Extractor
	Source        reputation.Source
	Writer        storage.EventWriter
	ShellTools    []string      // default: ["Bash"]
	ReadTimeout   time.Duration // default: hook.DefaultReadTimeout
	MaxInputBytes int64         // default: hook.DefaultMaxInputBytes
	Logger        *zap.Logger
}

// Gate evaluates hook events end to end, from command text to audited decision.
// It holds no state between events.
type Gate struct {
	extractor   *extract.Extractor
	source      reputation.Source
	writer      storage.EventWriter
	shellTools  map[string]bool
	readTimeout time.Duration
	maxInput    int64
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// NewGate creates a Gate, filling unset fields with defaults.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Extractor == nil {
		cfg.Extractor = extract.Default()
	}
	if len(cfg.ShellTools) == 0 {
		cfg.ShellTools = []string{DefaultShellTool}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Writer == nil {
		cfg.Writer = storage.NewLogWriter(cfg.Logger)
	}
	tools := make(map[string]bool, len(cfg.ShellTools))
	for _, t := range cfg.ShellTools {
		tools[t] = true
	}
	return &Gate{
		extractor:   cfg.Extractor,
		source:      cfg.Source,
		writer:      cfg.Writer,
		shellTools:  tools,
		readTimeout: cfg.ReadTimeout,
		maxInput:    cfg.MaxInputBytes,
		logger:      cfg.Logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

// Handle reads one event from in, evaluates it, and writes exactly one
// decision document to out. Bad input and internal panics resolve to allow.
func (g *Gate) Handle(ctx context.Context, in io.Reader, out io.Writer) (d hook.Decision) {
	d = hook.Allow("")
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("gate panicked, allowing",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			d = hook.Allow("")
		}
		if err := hook.Emit(out, d); err != nil {
			g.logger.Error("failed to emit decision", zap.Error(err))
		}
	}()

	ev, err := hook.ReadEvent(in, g.readTimeout, g.maxInput)
	if err != nil {
		g.logger.Debug("unusable hook input, allowing", zap.Error(err))
		return d
	}

	return g.Evaluate(ctx, ev)
}

// Evaluate decides a single event. It never returns an error: every failure
// mode maps to one of allow, ask or deny.
func (g *Gate) Evaluate(ctx context.Context, ev *hook.Event) hook.Decision {
	if ev == nil || !g.shellTools[ev.ToolName] {
		return hook.Allow("")
	}

	command := ev.Command()
	res := g.extractor.Extract(command)
	switch res.Kind {
	case extract.KindPackageAdd:
	case extract.KindLockfileOnly:
		g.logger.Debug("lockfile-only install, allowing", zap.String("command", command))
		return hook.Allow("")
	default:
		return hook.Allow("")
	}

	log := g.logger.With(zap.String("session_id", ev.SessionID))

	if g.source == nil {
		return g.toolMissing(ev, res.Refs, command, errors.New("no reputation source configured"), log)
	}
	if err := g.source.Available(); err != nil {
		return g.toolMissing(ev, res.Refs, command, err, log)
	}

	decisions := make([]hook.Decision, 0, len(res.Refs))
	for i, ref := range res.Refs {
		d, missing := g.evaluatePackage(ctx, ev, ref, command, log)
		if missing != nil {
			decisions = append(decisions, g.toolMissing(ev, res.Refs[i:], command, missing, log))
			break
		}
		decisions = append(decisions, d)
	}
	return strictest(decisions)
}

// evaluatePackage scores and audits one package. A non-nil error means the
// scoring tool disappeared and nothing was recorded for ref.
func (g *Gate) evaluatePackage(
	ctx context.Context,
	ev *hook.Event,
	ref extract.PackageRef,
	command string,
	log *zap.Logger,
) (hook.Decision, error) {
	log = log.With(
		zap.String("ecosystem", ref.Ecosystem),
		zap.String("package", ref.Name),
	)

	report, err := g.source.Score(ctx, ref)
	if err == nil && report == nil {
		err = fmt.Errorf("%w: no report returned", reputation.ErrIndeterminate)
	}
	if err != nil {
		if errors.Is(err, reputation.ErrToolNotFound) {
			return hook.Decision{}, err
		}
		reason := fmt.Sprintf("Could not verify %s package %s (%v); allowing unverified install", ref.Ecosystem, ref.Name, err)
		log.Warn("reputation check indeterminate, allowing", zap.Error(err))
		g.record(ev, ref, command, storage.EventError, storage.ActionAllowed, reason, nil)
		return hook.Allow(reason), nil
	}

	result := Decide(report)
	log.Info("package decision",
		zap.String("decision", string(result.Decision.Type)),
		zap.Int("alerts", len(report.Alerts)),
	)
	g.record(ev, ref, command, result.EventType, result.Action, result.Reason, result.Alerts)
	return result.Decision, nil
}

// strictest folds per-package decisions: deny over ask over allow. Reasons of
// the winning type are joined in command order.
func strictest(decisions []hook.Decision) hook.Decision {
	out := hook.Allow("")
	var reasons []string
	for _, d := range decisions {
		switch {
		case decisionRank(d.Type) > decisionRank(out.Type):
			out.Type = d.Type
			reasons = reasons[:0]
		case decisionRank(d.Type) < decisionRank(out.Type):
			continue
		}
		if d.Reason != "" {
			reasons = append(reasons, d.Reason)
		}
	}
	out.Reason = strings.Join(reasons, "; ")
	return out
}

func decisionRank(t hook.DecisionType) int {
	switch t {
	case hook.DecisionDeny:
		return 2
	case hook.DecisionAsk:
		return 1
	default:
		return 0
	}
}

// toolMissing asks the user and records one error event per package that
// could not be verified.
func (g *Gate) toolMissing(ev *hook.Event, refs []extract.PackageRef, command string, err error, log *zap.Logger) hook.Decision {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	reason := fmt.Sprintf("Cannot verify %s package %s: reputation tool unavailable (%v). To enable checks, %s.",
		refs[0].Ecosystem, strings.Join(names, ", "), err, reputation.InstallHint)
	log.Warn("reputation tool unavailable, asking user", zap.Error(err))
	for _, ref := range refs {
		g.record(ev, ref, command, storage.EventError, storage.ActionAsked, reason, nil)
	}
	return hook.Ask(reason)
}

func (g *Gate) record(
	ev *hook.Event,
	ref extract.PackageRef,
	command string,
	eventType storage.EventType,
	action, reason string,
	alerts []reputation.Alert,
) {
	auditAlerts := make([]storage.Alert, len(alerts))
	for i, a := range alerts {
		auditAlerts[i] = storage.Alert{
			Name:     a.Name,
			Severity: a.Severity.String(),
			Category: a.Category,
		}
	}

	g.writer.Write(&storage.SecurityEvent{
		EventID:       g.newID(),
		Timestamp:     g.now(),
		SessionID:     ev.SessionID,
		EventType:     eventType,
		Tool:          ev.ToolName,
		Ecosystem:     ref.Ecosystem,
		Package:       ref.Name,
		Alerts:        auditAlerts,
		Reason:        reason,
		ActionTaken:   action,
		CommandDigest: commandDigest(command),
	})
}

// commandDigest fingerprints the raw command so remote sinks can correlate
// events without storing command text.
func commandDigest(command string) string {
	sum := blake2b.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}
