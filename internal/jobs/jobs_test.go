package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"

	"alertrelay.io/relay/internal/pkg/logger"
	"alertrelay.io/relay/internal/repository"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestDispatchArgsKinds(t *testing.T) {
	t.Parallel()

	if got := (EmailDispatchArgs{}).Kind(); got != "email_dispatch" {
		t.Fatalf("Kind() = %q, want %q", got, "email_dispatch")
	}
	if got := (ChatDispatchArgs{}).Kind(); got != "chat_dispatch" {
		t.Fatalf("Kind() = %q, want %q", got, "chat_dispatch")
	}
	if got := (AuditCleanupArgs{}).Kind(); got != "audit_cleanup" {
		t.Fatalf("Kind() = %q, want %q", got, "audit_cleanup")
	}
}

func TestDispatchArgsInsertOpts(t *testing.T) {
	t.Parallel()

	for _, opts := range []river.InsertOpts{
		(EmailDispatchArgs{}).InsertOpts(),
		(ChatDispatchArgs{}).InsertOpts(),
	} {
		if opts.Queue != river.QueueDefault {
			t.Fatalf("Queue = %q, want %q", opts.Queue, river.QueueDefault)
		}
		if opts.MaxAttempts != 1 {
			t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
		}
		if opts.UniqueOpts.ByPeriod != time.Minute {
			t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, time.Minute)
		}
		if !opts.UniqueOpts.ByQueue || !opts.UniqueOpts.ByArgs {
			t.Fatal("UniqueOpts must scope by queue and args")
		}
	}
}

func TestAuditCleanupArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (AuditCleanupArgs{}).InsertOpts()
	if opts.UniqueOpts.ByPeriod != 24*time.Hour {
		t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, 24*time.Hour)
	}
}

func TestNewAuditCleanupWorkerRetention(t *testing.T) {
	t.Parallel()

	t.Run("defaults to ninety days when non-positive", func(t *testing.T) {
		w := NewAuditCleanupWorker(nil, 0)
		if w.retention != DefaultAuditRetention {
			t.Fatalf("retention = %s, want %s", w.retention, DefaultAuditRetention)
		}
	})

	t.Run("uses explicit retention when provided", func(t *testing.T) {
		want := 30 * 24 * time.Hour
		w := NewAuditCleanupWorker(nil, want)
		if w.retention != want {
			t.Fatalf("retention = %s, want %s", w.retention, want)
		}
	})
}

func TestAuditCleanupWorkerWork(t *testing.T) {
	t.Parallel()

	mem := repository.NewMemory()
	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	mem.Now = func() time.Time { return old }
	if err := mem.AppendAudit(context.Background(), "n1", "NOTIFICATION_SENT", "1/1 sent"); err != nil {
		t.Fatal(err)
	}
	mem.Now = time.Now
	if err := mem.AppendAudit(context.Background(), "n1", "MARKED_RECEIVED", ""); err != nil {
		t.Fatal(err)
	}

	w := NewAuditCleanupWorker(mem, DefaultAuditRetention)
	if err := w.Work(context.Background(), nil); err != nil {
		t.Fatalf("Work() error = %v", err)
	}

	entries := mem.Audits("n1")
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Action != "MARKED_RECEIVED" {
		t.Fatalf("surviving action = %q, want MARKED_RECEIVED", entries[0].Action)
	}
}

func TestWorkersUninitialized(t *testing.T) {
	t.Parallel()

	if err := (&EmailDispatchWorker{}).Work(context.Background(), nil); err == nil {
		t.Fatal("expected error for uninitialized email dispatch worker")
	}
	if err := (&ChatDispatchWorker{}).Work(context.Background(), nil); err == nil {
		t.Fatal("expected error for uninitialized chat dispatch worker")
	}
	if err := (&AuditCleanupWorker{}).Work(context.Background(), nil); err == nil {
		t.Fatal("expected error for uninitialized audit cleanup worker")
	}
}
