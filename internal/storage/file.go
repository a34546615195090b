package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// RootEnv overrides the audit root directory.
	RootEnv = "PACKAGE_GUARD_AUDIT_DIR"

	// RuntimeDirEnv points at the agent runtime's config directory.
	RuntimeDirEnv = "CLAUDE_CONFIG_DIR"

	// SecurityDir is the audit subdirectory under the runtime or home directory.
	SecurityDir = "security"

	// PackageNameMaxLength caps the package segment of audit filenames.
	PackageNameMaxLength = 50

	fileTimeLayout = "20060102-150405"
)

// ResolveRoot picks the audit root: explicit override, then the runtime's
// security subdirectory, then ~/.claude/security.
func ResolveRoot(override string) string {
	if override != "" {
		return override
	}
	if dir := os.Getenv(RuntimeDirEnv); dir != "" {
		return filepath.Join(dir, SecurityDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "package-guard", SecurityDir)
	}
	return filepath.Join(home, ".claude", SecurityDir)
}

// SanitizePackageName keeps ASCII letters and digits only, capped at
// PackageNameMaxLength. Returns "unknown" when nothing survives.
func SanitizePackageName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= PackageNameMaxLength {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// EventPath returns <root>/<YYYY>/<MM>/<type>-<package>-<YYYYMMDD-HHMMSS>.json.
func EventPath(root string, event *SecurityEvent) string {
	ts := event.Timestamp.UTC()
	name := fmt.Sprintf("%s-%s-%s.json",
		event.EventType,
		SanitizePackageName(event.Package),
		ts.Format(fileTimeLayout),
	)
	return filepath.Join(root, ts.Format("2006"), ts.Format("01"), name)
}

// FileWriter writes one JSON document per event under a dated directory tree.
type FileWriter struct {
	root   string
	logger *zap.Logger
}

// NewFileWriter creates a FileWriter rooted at root.
func NewFileWriter(root string, logger *zap.Logger) *FileWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWriter{root: root, logger: logger}
}

// Root returns the directory events are written under.
func (w *FileWriter) Root() string { return w.root }

// Write persists the event. Failures are logged and dropped.
func (w *FileWriter) Write(event *SecurityEvent) {
	path := EventPath(w.root, event)
	if err := w.write(path, event); err != nil {
		w.logger.Warn("audit write failed, dropping event",
			zap.String("path", path),
			zap.String("event_type", string(event.EventType)),
			zap.String("package", event.Package),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("audit event written", zap.String("path", path))
}

func (w *FileWriter) Close() {}

func (w *FileWriter) write(path string, event *SecurityEvent) error {
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')
	return atomicWrite(path, data)
}

// atomicWrite writes to a temp file in the target directory and renames it
// into place, so readers never observe a partial document.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}
