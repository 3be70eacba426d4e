// internal/session/tracker.go
package session

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/internal/utils"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

var logger = utils.NewComponentLogger("session-tracker")

// Sink receives durable session and error updates. The storage gateway
// implements it; tests substitute an in-memory recorder.
type Sink interface {
	SaveSession(s *types.Session) error
	SaveError(rec *types.ErrorRecord) error
}

// Tracker owns the lifecycle of one scraping session. Counters only grow;
// the terminal state and end time are set exactly once.
type Tracker struct {
	mu   sync.Mutex
	s    types.Session
	sink Sink
	now  func() time.Time
}

// Start opens a new active session for the target and persists the initial
// row.
func Start(sink Sink, platform types.Platform, targetType types.TargetType, target string, cfg map[string]interface{}) (*Tracker, error) {
	t := &Tracker{
		sink: sink,
		now:  time.Now,
	}
	t.s = types.Session{
		SessionID:  uuid.NewString(),
		Platform:   platform,
		TargetType: targetType,
		Target:     target,
		Status:     types.SessionActive,
		StartTime:  time.Now().UTC(),
		Config:     cfg,
	}

	if err := sink.SaveSession(&t.s); err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"session_id": t.s.SessionID,
		"platform":   platform,
		"target":     target,
	}).Info("session started")

	return t, nil
}

// ID returns the session identifier.
func (t *Tracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.SessionID
}

// RecordSuccess counts one stored post.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	t.s.TotalPosts++
	t.s.SuccessfulPosts++
	t.mu.Unlock()
}

// RecordFailure counts one failed item and durably records its error. The
// write happens before any retry decision so the evidence survives even if
// a later attempt succeeds.
func (t *Tracker) RecordFailure(err error) {
	errType, message, code, ctx := scrapeerrors.Record(err)

	// Fatal errors abort the session, so the capture site matters for the
	// post-mortem. Item-level failures are routine and skip the expense.
	var stack string
	if scrapeerrors.IsFatal(err) {
		stack = string(debug.Stack())
	}

	t.mu.Lock()
	t.s.TotalPosts++
	t.s.FailedPosts++
	t.s.LastError = message
	rec := &types.ErrorRecord{
		SessionID:  t.s.SessionID,
		Type:       errType,
		Message:    message,
		Code:       code,
		StackTrace: stack,
		Context:    ctx,
		OccurredAt: t.now().UTC(),
	}
	t.mu.Unlock()

	if saveErr := t.sink.SaveError(rec); saveErr != nil {
		logger.WithError(saveErr).Error("failed to persist error record")
	}
}

// Snapshot returns a copy of the current session state.
func (t *Tracker) Snapshot() types.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	return s
}

// Complete transitions the session to completed.
func (t *Tracker) Complete() error {
	return t.finish(types.SessionCompleted, "")
}

// Fail transitions the session to failed, recording the cause.
func (t *Tracker) Fail(cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.finish(types.SessionFailed, msg)
}

// Cancel transitions the session to cancelled.
func (t *Tracker) Cancel() error {
	return t.finish(types.SessionCancelled, "")
}

func (t *Tracker) finish(status types.SessionStatus, lastError string) error {
	t.mu.Lock()
	if t.s.Status.IsTerminal() {
		current := t.s.Status
		t.mu.Unlock()
		return fmt.Errorf("session %s already %s, cannot transition to %s", t.s.SessionID, current, status)
	}

	end := t.now().UTC()
	t.s.Status = status
	t.s.EndTime = &end
	t.s.Duration = end.Sub(t.s.StartTime)
	if lastError != "" {
		t.s.LastError = lastError
	}
	snapshot := t.s
	t.mu.Unlock()

	if err := t.sink.SaveSession(&snapshot); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"session_id": snapshot.SessionID,
		"status":     snapshot.Status,
		"total":      snapshot.TotalPosts,
		"failed":     snapshot.FailedPosts,
		"duration":   snapshot.Duration.String(),
	}).Info("session finished")

	return nil
}

// Flush persists the current counters without changing state. Long sessions
// call it periodically so progress survives a crash.
func (t *Tracker) Flush() error {
	snapshot := t.Snapshot()
	return t.sink.SaveSession(&snapshot)
}
