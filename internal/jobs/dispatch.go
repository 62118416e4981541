// Package jobs defines the River Queue job types driving the periodic
// dispatch cycles and maintenance work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"alertrelay.io/relay/internal/dispatch"
)

// EmailDispatchArgs triggers one email delivery cycle.
type EmailDispatchArgs struct{}

// Kind returns the job kind identifier for email dispatch.
func (EmailDispatchArgs) Kind() string { return "email_dispatch" }

// InsertOpts collapses overlapping ticks: at most one email cycle is
// enqueued per minute, which keeps the cycle single-writer even when the
// periodic scheduler and a manual trigger coincide.
func (EmailDispatchArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// EmailDispatchWorker runs the email cycle.
type EmailDispatchWorker struct {
	river.WorkerDefaults[EmailDispatchArgs]
	dispatcher *dispatch.Dispatcher
}

// NewEmailDispatchWorker creates an email dispatch worker.
func NewEmailDispatchWorker(d *dispatch.Dispatcher) *EmailDispatchWorker {
	return &EmailDispatchWorker{dispatcher: d}
}

// Work executes one email delivery cycle.
func (w *EmailDispatchWorker) Work(ctx context.Context, _ *river.Job[EmailDispatchArgs]) error {
	if w == nil || w.dispatcher == nil {
		return fmt.Errorf("email dispatch worker is not initialized")
	}
	return w.dispatcher.RunEmailCycle(ctx)
}

// ChatDispatchArgs triggers one chat delivery cycle.
type ChatDispatchArgs struct{}

// Kind returns the job kind identifier for chat dispatch.
func (ChatDispatchArgs) Kind() string { return "chat_dispatch" }

// InsertOpts mirrors email dispatch: one cycle per minute at most.
func (ChatDispatchArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// ChatDispatchWorker runs the chat cycle.
type ChatDispatchWorker struct {
	river.WorkerDefaults[ChatDispatchArgs]
	dispatcher *dispatch.Dispatcher
}

// NewChatDispatchWorker creates a chat dispatch worker.
func NewChatDispatchWorker(d *dispatch.Dispatcher) *ChatDispatchWorker {
	return &ChatDispatchWorker{dispatcher: d}
}

// Work executes one chat delivery cycle.
func (w *ChatDispatchWorker) Work(ctx context.Context, _ *river.Job[ChatDispatchArgs]) error {
	if w == nil || w.dispatcher == nil {
		return fmt.Errorf("chat dispatch worker is not initialized")
	}
	return w.dispatcher.RunChatCycle(ctx)
}
