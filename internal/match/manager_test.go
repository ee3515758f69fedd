// internal/match/manager_test.go
package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueroa/quizparty/internal/protocol"
)

const (
	testGrace     = 20 * time.Millisecond
	testRetention = 250 * time.Millisecond
)

// collectBroadcaster records every broadcast event for inspection.
type collectBroadcaster struct {
	mu     sync.Mutex
	events []protocol.Envelope
}

func (b *collectBroadcaster) fn(matchID string, env protocol.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, env)
}

func (b *collectBroadcaster) byType(t string) []protocol.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.Envelope
	for _, ev := range b.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeParticipants is an in-memory ParticipantStore with injectable
// per-user failures.
type fakeParticipants struct {
	mu       sync.Mutex
	inserted [][2]string
	failFor  map[string]error
}

func (f *fakeParticipants) InsertParticipant(ctx context.Context, matchID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[userID]; ok {
		return err
	}
	f.inserted = append(f.inserted, [2]string{matchID, userID})
	return nil
}

func newTestManager(t *testing.T, parts ParticipantStore) (*Manager, *collectBroadcaster) {
	t.Helper()
	b := &collectBroadcaster{}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	mgr := NewManager(ManagerConfig{
		Participants: parts,
		Broadcast:    b.fn,
		GraceDelay:   testGrace,
		Retention:    testRetention,
		Logger:       log,
	})
	return mgr, b
}

func create(t *testing.T, mgr *Manager, matchID, hostID string) {
	t.Helper()
	require.NoError(t, mgr.Create(context.Background(), uuid.Nil, protocol.CreateCommand{
		MatchID: matchID,
		UserID:  hostID,
	}))
}

func join(mgr *Manager, matchID, userID string) error {
	return mgr.Join(context.Background(), uuid.Nil, protocol.JoinCommand{
		MatchID: matchID,
		UserID:  userID,
	})
}

func TestCreateDuplicateConflict(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")

	err := mgr.Create(context.Background(), uuid.Nil, protocol.CreateCommand{MatchID: "m1", UserID: "u2"})
	require.ErrorIs(t, err, ErrConflict)

	// The existing match is untouched.
	m, ok := mgr.Store().Get("m1")
	require.True(t, ok)
	assert.Equal(t, "u1", m.HostID)
	assert.Equal(t, []string{"u1"}, m.Players)
}

func TestJoinPreservesOrder(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	for _, u := range []string{"u2", "u3", "u4"} {
		require.NoError(t, join(mgr, "m1", u))
	}

	m, _ := mgr.Store().Get("m1")
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, m.Players)
}

func TestJoinUnknownMatch(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	err := join(mgr, "m2", "u1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, mgr.Store().Len())
}

func TestJoinDuplicateUser(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, join(mgr, "m1", "u2"))

	err := join(mgr, "m1", "u2")
	require.ErrorIs(t, err, ErrConflict)

	m, _ := mgr.Store().Get("m1")
	assert.Len(t, m.Players, 2)
}

func TestJoinAfterStart(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, mgr.Start("m1", "u1"))

	err := join(mgr, "m1", "u2")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStartByNonHost(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, join(mgr, "m1", "u2"))

	err := mgr.Start("m1", "u2")
	require.ErrorIs(t, err, ErrForbidden)

	m, _ := mgr.Store().Get("m1")
	assert.Equal(t, StateWaiting, m.State)
}

func TestStartBroadcastsFirstQuestion(t *testing.T) {
	mgr, b := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, mgr.Start("m1", "u1"))

	questions := b.byType(protocol.TypeNewQuestion)
	require.Len(t, questions, 1)
	payload := questions[0].Payload.(map[string]any)
	assert.Equal(t, 0, payload["index"])

	second := mgr.Start("m1", "u1")
	require.ErrorIs(t, second, ErrInvalidState)
}

func TestAllAnsweredAdvancesOnce(t *testing.T) {
	mgr, b := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, join(mgr, "m1", "u2"))
	require.NoError(t, mgr.Start("m1", "u1"))

	mgr.SubmitAnswer("m1", "u1", "Paris")
	mgr.SubmitAnswer("m1", "u2", "Paris")

	time.Sleep(3 * testGrace)

	questions := b.byType(protocol.TypeNewQuestion)
	require.Len(t, questions, 2)
	payload := questions[1].Payload.(map[string]any)
	assert.Equal(t, 1, payload["index"])
}

func TestResubmissionDoesNotRetriggerAdvance(t *testing.T) {
	mgr, b := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, join(mgr, "m1", "u2"))
	require.NoError(t, mgr.Start("m1", "u1"))

	mgr.SubmitAnswer("m1", "u1", "Paris")
	mgr.SubmitAnswer("m1", "u2", "Lyon")
	mgr.SubmitAnswer("m1", "u2", "Paris")
	mgr.SubmitAnswer("m1", "u1", "Paris")

	time.Sleep(3 * testGrace)

	// One advance for index 0 at start, exactly one more after the
	// grace delay, despite the resubmissions.
	assert.Len(t, b.byType(protocol.TypeNewQuestion), 2)
}

func TestLatestAnswerWins(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, join(mgr, "m1", "u2"))
	require.NoError(t, mgr.Start("m1", "u1"))

	mgr.SubmitAnswer("m1", "u1", "first")
	mgr.SubmitAnswer("m1", "u1", "second")

	m, _ := mgr.Store().Get("m1")
	m.Mu.Lock()
	got := m.Answers[m.CurrentIndex]["u1"]
	m.Mu.Unlock()
	assert.Equal(t, "second", got)
}

func TestSubmitIgnoredOutsidePlaying(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	// Unknown match: silent no-op.
	mgr.SubmitAnswer("nope", "u1", "x")

	create(t, mgr, "m1", "u1")
	mgr.SubmitAnswer("m1", "u1", "too early")

	m, _ := mgr.Store().Get("m1")
	m.Mu.Lock()
	defer m.Mu.Unlock()
	assert.Empty(t, m.Answers)
}

func TestFinishAndRetention(t *testing.T) {
	mgr, b := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, mgr.Start("m1", "u1"))

	// Answer through every question; a solo host answers alone.
	for i := 0; i < len(DefaultQuestions()); i++ {
		mgr.SubmitAnswer("m1", "u1", fmt.Sprintf("answer %d", i))
		time.Sleep(3 * testGrace)
	}

	finished := b.byType(protocol.TypeMatchFinished)
	require.Len(t, finished, 1)

	m, ok := mgr.Store().Get("m1")
	require.True(t, ok)
	assert.Equal(t, StateFinished, m.State)

	// Finished is terminal.
	require.ErrorIs(t, join(mgr, "m1", "u9"), ErrInvalidState)
	require.ErrorIs(t, mgr.Start("m1", "u1"), ErrInvalidState)
	mgr.SubmitAnswer("m1", "u1", "late")

	// The retention timer reaps the match.
	time.Sleep(2 * testRetention)
	_, ok = mgr.Store().Get("m1")
	assert.False(t, ok)
}

func TestFinalAnswersSnapshot(t *testing.T) {
	mgr, b := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, mgr.Start("m1", "u1"))

	total := len(DefaultQuestions())
	for i := 0; i < total; i++ {
		mgr.SubmitAnswer("m1", "u1", fmt.Sprintf("answer %d", i))
		time.Sleep(3 * testGrace)
	}

	finished := b.byType(protocol.TypeMatchFinished)
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(map[string]any)
	answers := payload["answers"].(map[int]map[string]string)
	assert.Len(t, answers, total)
}

func TestCreateRollsBackOnPersistenceFailure(t *testing.T) {
	parts := &fakeParticipants{failFor: map[string]error{"u1": errors.New("db down")}}
	mgr, b := newTestManager(t, parts)

	err := mgr.Create(context.Background(), uuid.Nil, protocol.CreateCommand{MatchID: "m1", UserID: "u1"})
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 0, mgr.Store().Len())
	assert.Empty(t, b.byType(protocol.TypePlayerJoined))
}

func TestJoinRollsBackOnPersistenceFailure(t *testing.T) {
	parts := &fakeParticipants{failFor: map[string]error{"u2": errors.New("db down")}}
	mgr, _ := newTestManager(t, parts)
	create(t, mgr, "m1", "u1")

	err := join(mgr, "m1", "u2")
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)

	m, _ := mgr.Store().Get("m1")
	assert.Equal(t, []string{"u1"}, m.Players)
	_, named := m.Names["u2"]
	assert.False(t, named)
}

func TestParticipantsRecorded(t *testing.T) {
	parts := &fakeParticipants{}
	mgr, _ := newTestManager(t, parts)
	create(t, mgr, "m1", "u1")
	require.NoError(t, join(mgr, "m1", "u2"))

	parts.mu.Lock()
	defer parts.mu.Unlock()
	assert.Equal(t, [][2]string{{"m1", "u1"}, {"m1", "u2"}}, parts.inserted)
}

func TestCleanupSafeAgainstTimers(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, mgr.Start("m1", "u1"))
	mgr.SubmitAnswer("m1", "u1", "Paris")

	// Force-delete while the advance timer is pending.
	assert.True(t, mgr.Cleanup("m1"))
	assert.False(t, mgr.Cleanup("m1"))

	time.Sleep(3 * testGrace)
	assert.Equal(t, 0, mgr.Store().Len())
}

func TestPlayerJoinedBroadcast(t *testing.T) {
	mgr, b := newTestManager(t, nil)
	create(t, mgr, "m1", "u1")
	require.NoError(t, mgr.Join(context.Background(), uuid.Nil, protocol.JoinCommand{
		MatchID:     "m1",
		UserID:      "u2",
		DisplayName: "Ada",
	}))

	joined := b.byType(protocol.TypePlayerJoined)
	require.Len(t, joined, 2)
	payload := joined[1].Payload.(map[string]any)
	assert.Equal(t, "Ada has joined", payload["message"])
	assert.Equal(t, "u2", payload["userId"])
	assert.Equal(t, []string{"u1", "u2"}, payload["players"])
}
