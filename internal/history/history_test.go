package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	if err := s.RecordStart(ctx, Record{ID: "s1", Instance: "alpha", Port: "6229", StartedAt: started}); err != nil {
		t.Fatalf("RecordStart failed: %v", err)
	}

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].EndedAt != nil || records[0].Duration() != 0 {
		t.Fatalf("expected one open session, got %+v", records)
	}

	code := 0
	if err := s.RecordEnd(ctx, "s1", ReasonExited, &code, started.Add(90*time.Second)); err != nil {
		t.Fatalf("RecordEnd failed: %v", err)
	}

	records, err = s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	rec := records[0]
	if rec.EndReason != ReasonExited {
		t.Errorf("EndReason = %q, want %q", rec.EndReason, ReasonExited)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", rec.ExitCode)
	}
	if rec.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", rec.Duration())
	}
}

func TestRecordEndUnknown(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordEnd(context.Background(), "missing", ReasonStopped, nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, inst := range []string{"alpha", "beta", "alpha"} {
		rec := Record{
			ID:        string(rune('a' + i)),
			Instance:  inst,
			Port:      "6229",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.RecordStart(ctx, rec); err != nil {
			t.Fatalf("RecordStart failed: %v", err)
		}
	}

	records, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "c" || records[1].ID != "b" {
		t.Errorf("unexpected order: %+v", records)
	}

	records, err = s.ForInstance(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("ForInstance failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 alpha sessions, got %d", len(records))
	}
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.RecordStart(context.Background(), Record{ID: "x", Instance: "alpha", StartedAt: time.Now()}); err != nil {
		t.Errorf("RecordStart failed: %v", err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestOpenSessionAndAbandon(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	if _, err := s.OpenSession(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any session, got %v", err)
	}

	for _, rec := range []Record{
		{ID: "old", Instance: "alpha", StartedAt: started},
		{ID: "new", Instance: "alpha", StartedAt: started.Add(time.Hour)},
		{ID: "other", Instance: "beta", StartedAt: started},
	} {
		if err := s.RecordStart(ctx, rec); err != nil {
			t.Fatalf("RecordStart(%s) failed: %v", rec.ID, err)
		}
	}

	rec, err := s.OpenSession(ctx, "alpha")
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if rec.ID != "new" {
		t.Errorf("OpenSession = %s, want newest open session", rec.ID)
	}

	n, err := s.Abandon(ctx, "alpha", started.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Abandon failed: %v", err)
	}
	if n != 2 {
		t.Errorf("abandoned %d sessions, want 2", n)
	}
	if _, err := s.OpenSession(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no open alpha session, got %v", err)
	}
	if _, err := s.OpenSession(ctx, "beta"); err != nil {
		t.Errorf("beta should stay open: %v", err)
	}

	records, err := s.ForInstance(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("ForInstance failed: %v", err)
	}
	for _, r := range records {
		if r.EndReason != ReasonAbandoned || r.ExitCode != nil {
			t.Errorf("record %s = %+v, want abandoned without exit code", r.ID, r)
		}
	}
}
