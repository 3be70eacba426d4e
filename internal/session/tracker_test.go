// internal/session/tracker_test.go
package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scrapeerrors "github.com/valpere/SocialScrapexter/internal/errors"
	"github.com/valpere/SocialScrapexter/pkg/types"
)

type memorySink struct {
	mu       sync.Mutex
	sessions []types.Session
	errors   []types.ErrorRecord
}

func (m *memorySink) SaveSession(s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, *s)
	return nil
}

func (m *memorySink) SaveError(rec *types.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, *rec)
	return nil
}

func startTracker(t *testing.T, sink *memorySink) *Tracker {
	t.Helper()
	tr, err := Start(sink, types.PlatformTwitter, types.TargetUser, "jdoe", nil)
	require.NoError(t, err)
	return tr
}

func TestStartPersistsActiveSession(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	require.Len(t, sink.sessions, 1)
	s := sink.sessions[0]
	assert.Equal(t, tr.ID(), s.SessionID)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, types.SessionActive, s.Status)
	assert.Nil(t, s.EndTime)
}

func TestCountersAreMonotonic(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordFailure(scrapeerrors.New(scrapeerrors.TypeParse, "bad item"))

	s := tr.Snapshot()
	assert.Equal(t, int64(3), s.TotalPosts)
	assert.Equal(t, int64(2), s.SuccessfulPosts)
	assert.Equal(t, int64(1), s.FailedPosts)
	assert.Contains(t, s.LastError, "bad item")
}

func TestRecordFailurePersistsErrorRecord(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	err := scrapeerrors.New(scrapeerrors.TypeRateLimited, "too many requests").WithCode("429")
	tr.RecordFailure(err)

	require.Len(t, sink.errors, 1)
	rec := sink.errors[0]
	assert.Equal(t, tr.ID(), rec.SessionID)
	assert.Equal(t, "rate_limited", rec.Type)
	assert.Equal(t, "429", rec.Code)
	assert.False(t, rec.OccurredAt.IsZero())
}

func TestFatalFailureCapturesStackTrace(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	tr.RecordFailure(scrapeerrors.New(scrapeerrors.TypeFatal, "storage unavailable"))
	tr.RecordFailure(scrapeerrors.New(scrapeerrors.TypeParse, "bad item"))

	require.Len(t, sink.errors, 2)
	assert.NotEmpty(t, sink.errors[0].StackTrace, "fatal errors carry a stack trace")
	assert.Contains(t, sink.errors[0].StackTrace, "tracker_test.go")
	assert.Empty(t, sink.errors[1].StackTrace, "item-level errors do not")
}

func TestCompleteSetsTerminalState(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)
	tr.RecordSuccess()

	require.NoError(t, tr.Complete())

	s := tr.Snapshot()
	assert.Equal(t, types.SessionCompleted, s.Status)
	require.NotNil(t, s.EndTime)
	assert.True(t, s.Duration >= 0)
}

func TestTerminalStateIsFinal(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	require.NoError(t, tr.Cancel())
	assert.Error(t, tr.Complete(), "completed after cancel must be rejected")
	assert.Error(t, tr.Fail(nil))

	s := tr.Snapshot()
	assert.Equal(t, types.SessionCancelled, s.Status)
}

func TestFailRecordsCause(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	require.NoError(t, tr.Fail(scrapeerrors.New(scrapeerrors.TypeFatal, "credentials rejected")))

	s := tr.Snapshot()
	assert.Equal(t, types.SessionFailed, s.Status)
	assert.Contains(t, s.LastError, "credentials rejected")
}

func TestConcurrentRecording(t *testing.T) {
	sink := &memorySink{}
	tr := startTracker(t, sink)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				tr.RecordFailure(scrapeerrors.New(scrapeerrors.TypeNetwork, "timeout"))
			} else {
				tr.RecordSuccess()
			}
		}(i)
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.Equal(t, int64(100), s.TotalPosts)
	assert.Equal(t, int64(75), s.SuccessfulPosts)
	assert.Equal(t, int64(25), s.FailedPosts)
}
