package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func sampleEvent(t EventType, pkg string, ts time.Time) *SecurityEvent {
	return &SecurityEvent{
		EventID:   "evt-" + string(t) + "-" + pkg,
		Timestamp: ts,
		SessionID: "sess-1",
		EventType: t,
		Tool:      "Bash",
		Ecosystem: "npm",
		Package:   pkg,
		Alerts: []Alert{
			{Name: "malware", Severity: "critical", Category: "supplyChainRisk"},
		},
		Reason:      "test",
		ActionTaken: ActionBlocked,
	}
}

func TestSanitizePackageName(t *testing.T) {
	tests := map[string]string{
		"left-pad":         "leftpad",
		"@scope/pkg":       "scopepkg",
		"":                 "unknown",
		"@/-":              "unknown",
		"../../etc/passwd": "etcpasswd",
	}
	for in, want := range tests {
		if got := SanitizePackageName(in); got != want {
			t.Errorf("SanitizePackageName(%q) = %q, want %q", in, got, want)
		}
	}

	if got := SanitizePackageName(strings.Repeat("a", 80)); len(got) != PackageNameMaxLength {
		t.Errorf("expected name capped at %d, got %d", PackageNameMaxLength, len(got))
	}
}

func TestEventPath_Layout(t *testing.T) {
	ts := time.Date(2026, time.March, 7, 14, 5, 9, 0, time.UTC)
	got := EventPath("/audit", sampleEvent(EventBlock, "@evil/pkg", ts))
	want := filepath.Join("/audit", "2026", "03", "block-evilpkg-20260307-140509.json")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestResolveRoot_Priority(t *testing.T) {
	home := t.TempDir()
	runtime := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv(RuntimeDirEnv, "")
	if got := ResolveRoot(""); got != filepath.Join(home, ".claude", SecurityDir) {
		t.Fatalf("expected home fallback, got %s", got)
	}

	t.Setenv(RuntimeDirEnv, runtime)
	if got := ResolveRoot(""); got != filepath.Join(runtime, SecurityDir) {
		t.Fatalf("expected runtime dir, got %s", got)
	}

	if got := ResolveRoot("/explicit"); got != "/explicit" {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestFileWriter_WritesOneDocument(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root, zap.NewNop())
	ev := sampleEvent(EventWarn, "left-pad", time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	w.Write(ev)

	path := EventPath(root, ev)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected audit file at %s: %v", path, err)
	}

	var got SecurityEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("audit file is not JSON: %v", err)
	}
	if got.EventType != EventWarn || got.Package != "left-pad" || got.SessionID != "sess-1" {
		t.Fatalf("unexpected record: %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file (no temp leftovers), got %d", len(entries))
	}
}

func TestFileWriter_FailureIsSwallowed(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := NewFileWriter(blocker, zap.NewNop())
	w.Write(sampleEvent(EventError, "left-pad", time.Now()))

	info, err := os.Stat(blocker)
	if err != nil || info.IsDir() {
		t.Fatalf("expected blocker file untouched, got %v %v", info, err)
	}
}

func TestReadEvents_FilterAndOrder(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root, zap.NewNop())

	oct := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	w.Write(sampleEvent(EventBlock, "a", oct.Add(1*time.Hour)))
	w.Write(sampleEvent(EventAllow, "b", oct.Add(2*time.Hour)))
	w.Write(sampleEvent(EventBlock, "c", oct.Add(3*time.Hour)))
	w.Write(sampleEvent(EventBlock, "d", time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)))

	all, err := ReadEvents(root, EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].Package != "c" {
		t.Fatalf("expected newest first, got %s", all[0].Package)
	}

	blocks, err := ReadEvents(root, EventFilter{Month: oct, Type: EventBlock})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 october blocks, got %d", len(blocks))
	}

	limited, err := ReadEvents(root, EventFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestReadEvents_MissingRoot(t *testing.T) {
	events, err := ReadEvents(filepath.Join(t.TempDir(), "nope"), EventFilter{})
	if err != nil {
		t.Fatalf("expected no error for missing root, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

type recordingWriter struct {
	events []*SecurityEvent
	closed bool
}

func (r *recordingWriter) Write(e *SecurityEvent) { r.events = append(r.events, e) }
func (r *recordingWriter) Close()                 { r.closed = true }

func TestMultiWriter_FansOut(t *testing.T) {
	a, b := &recordingWriter{}, &recordingWriter{}
	m := NewMultiWriter(a, nil, b)
	m.Write(sampleEvent(EventAllow, "x", time.Now()))
	m.Close()

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected each writer to receive the event, got %d and %d", len(a.events), len(b.events))
	}
	if !a.closed || !b.closed {
		t.Fatal("expected all writers closed")
	}
}

type stubEventStore struct {
	rows []*eventRow
	err  error
}

func (s *stubEventStore) InsertEvent(_ context.Context, row *eventRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

func TestPostgresWriter_Insert(t *testing.T) {
	store := &stubEventStore{}
	w := newPostgresWriterWithStore(store, time.Second, zap.NewNop())
	w.Write(sampleEvent(EventBlock, "left-pad", time.Now()))

	if len(store.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(store.rows))
	}
	row := store.rows[0]
	if row.EventType != "block" || row.Package != "left-pad" {
		t.Fatalf("unexpected row: %+v", row)
	}
	var alerts []Alert
	if err := json.Unmarshal([]byte(row.AlertsJSON), &alerts); err != nil {
		t.Fatalf("alerts column is not JSON: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Name != "malware" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}

func TestPostgresWriter_NilAlertsEncodeAsEmptyArray(t *testing.T) {
	store := &stubEventStore{}
	w := newPostgresWriterWithStore(store, time.Second, nil)
	ev := sampleEvent(EventError, "left-pad", time.Now())
	ev.Alerts = nil
	w.Write(ev)

	if got := store.rows[0].AlertsJSON; got != "[]" {
		t.Fatalf("expected [], got %s", got)
	}
}

func TestPostgresWriter_ErrorIsSwallowed(t *testing.T) {
	store := &stubEventStore{err: errors.New("connection refused")}
	w := newPostgresWriterWithStore(store, time.Second, zap.NewNop())
	w.Write(sampleEvent(EventBlock, "left-pad", time.Now()))
	if len(store.rows) != 0 {
		t.Fatal("expected no rows on error")
	}
}

func TestToClickHouseRow(t *testing.T) {
	ev := sampleEvent(EventBlock, "left-pad", time.Now())
	ev.Alerts = append(ev.Alerts, Alert{Name: "typosquat", Severity: "high", Category: "quality"})
	row := toClickHouseRow(ev)

	if len(row.AlertNames) != 2 || row.AlertNames[1] != "typosquat" {
		t.Fatalf("unexpected alert names: %v", row.AlertNames)
	}
	if row.AlertSeverities[0] != "critical" || row.AlertCategories[1] != "quality" {
		t.Fatalf("unexpected alert columns: %v %v", row.AlertSeverities, row.AlertCategories)
	}
	if row.EventType != "block" {
		t.Fatalf("expected block, got %s", row.EventType)
	}
}

func TestLazyWriter_OpensOnFirstWrite(t *testing.T) {
	opened := 0
	inner := &recordingWriter{}
	w := NewLazyWriter(func() EventWriter {
		opened++
		return inner
	})

	if opened != 0 {
		t.Fatal("expected no open before the first event")
	}
	w.Write(sampleEvent(EventBlock, "a", time.Now()))
	w.Write(sampleEvent(EventBlock, "b", time.Now()))
	w.Close()

	if opened != 1 {
		t.Fatalf("expected a single open, got %d", opened)
	}
	if len(inner.events) != 2 || !inner.closed {
		t.Fatalf("expected both events delivered and sink closed, got %d closed=%v", len(inner.events), inner.closed)
	}
}

func TestLazyWriter_NeverOpenedWithoutEvents(t *testing.T) {
	opened := false
	w := NewLazyWriter(func() EventWriter {
		opened = true
		return &recordingWriter{}
	})
	w.Close()
	if opened {
		t.Fatal("expected close without events to skip opening")
	}
}

func TestLazyWriter_FailedOpenDropsEvents(t *testing.T) {
	opened := 0
	w := NewLazyWriter(func() EventWriter {
		opened++
		return nil
	})
	w.Write(sampleEvent(EventWarn, "a", time.Now()))
	w.Write(sampleEvent(EventWarn, "b", time.Now()))
	w.Close()
	if opened != 1 {
		t.Fatalf("expected one open attempt, got %d", opened)
	}
}
