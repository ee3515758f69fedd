// internal/match/manager.go
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/protocol"
	"github.com/mfigueroa/quizparty/internal/registry"
)

// Broadcaster delivers one event to every connection of a match. The
// handlers package injects an implementation backed by the connection
// registry; tests inject collectors.
type Broadcaster func(matchID string, env protocol.Envelope)

// ParticipantStore is the external persistence collaborator consulted on
// create and join. A failed insert rolls back the optimistic in-memory
// mutation.
type ParticipantStore interface {
	InsertParticipant(ctx context.Context, matchID, userID string) error
}

// JournalFunc records a match lifecycle event for the async archiver.
// Fire-and-forget; implementations must never block match flow.
type JournalFunc func(matchID, event string, payload map[string]any)

const (
	// DefaultGraceDelay is the fixed wait between the last answer arriving
	// and the advance to the next question.
	DefaultGraceDelay = 1 * time.Second

	// DefaultRetention is how long a finished match lingers before its
	// delayed deletion fires.
	DefaultRetention = 60 * time.Second
)

// ManagerConfig wires a Manager. Zero-value durations fall back to the
// defaults above; Participants, Journal and Broadcast may be nil.
type ManagerConfig struct {
	Registry     *registry.Registry
	Source       QuestionSource
	Participants ParticipantStore
	Broadcast    Broadcaster
	Journal      JournalFunc
	GraceDelay   time.Duration
	Retention    time.Duration
	Logger       *logrus.Logger
}

// Manager owns the match store and drives the Waiting -> Playing ->
// Finished lifecycle. All mutations of one match are serialized through
// that match's mutex; timers re-fetch the match when they fire and degrade
// to no-ops if it is gone.
type Manager struct {
	store        *Store
	registry     *registry.Registry
	source       QuestionSource
	participants ParticipantStore
	broadcast    Broadcaster
	journal      JournalFunc
	graceDelay   time.Duration
	retention    time.Duration
	log          *logrus.Logger
}

// NewManager builds a Manager around a fresh store.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Source == nil {
		cfg.Source = NewStaticSource(DefaultQuestions())
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Manager{
		store:        NewStore(),
		registry:     cfg.Registry,
		source:       cfg.Source,
		participants: cfg.Participants,
		broadcast:    cfg.Broadcast,
		journal:      cfg.Journal,
		graceDelay:   cfg.GraceDelay,
		retention:    cfg.Retention,
		log:          cfg.Logger,
	}
}

// SetBroadcast installs the fan-out after construction. The handlers
// package needs the registry and manager built before it can wire this.
func (mgr *Manager) SetBroadcast(b Broadcaster) { mgr.broadcast = b }

// Store exposes the repository for monitoring endpoints and tests.
func (mgr *Manager) Store() *Store { return mgr.store }

// Create builds a new Waiting match hosted by userID, associates the
// originating connection with it, and awaits the persistence insert. The
// match is stored optimistically and deleted again if persistence fails.
func (mgr *Manager) Create(ctx context.Context, connID uuid.UUID, cmd protocol.CreateCommand) error {
	m := newMatch(cmd.MatchID, cmd.UserID, protocol.DisplayNameOrDefault(cmd.DisplayName, cmd.UserID), mgr.source.Questions())
	if !mgr.store.Put(m) {
		return fmt.Errorf("create %s: %w: match id already exists", cmd.MatchID, ErrConflict)
	}
	mgr.setConnMeta(connID, cmd.UserID, cmd.MatchID)

	if err := mgr.insertParticipant(ctx, cmd.MatchID, cmd.UserID); err != nil {
		mgr.store.Delete(cmd.MatchID)
		return &UpstreamError{Op: "insert participant", Err: err}
	}

	mgr.log.Infof("match %s created by %s", cmd.MatchID, cmd.UserID)
	mgr.record(cmd.MatchID, "match_created", map[string]any{"hostId": cmd.UserID})

	mgr.broadcastPlayerJoined(m, cmd.UserID)
	return nil
}

// Join appends userID to a Waiting match, preserving join order. The
// append happens optimistically before the persistence insert and is
// undone when the insert fails.
func (mgr *Manager) Join(ctx context.Context, connID uuid.UUID, cmd protocol.JoinCommand) error {
	m, ok := mgr.store.Get(cmd.MatchID)
	if !ok {
		return fmt.Errorf("join %s: %w", cmd.MatchID, ErrNotFound)
	}

	m.Mu.Lock()
	if m.State != StateWaiting {
		m.Mu.Unlock()
		return fmt.Errorf("join %s: %w: match already started", cmd.MatchID, ErrInvalidState)
	}
	if m.hasPlayer(cmd.UserID) {
		m.Mu.Unlock()
		return fmt.Errorf("join %s: %w: user already in match", cmd.MatchID, ErrConflict)
	}
	m.Players = append(m.Players, cmd.UserID)
	m.Names[cmd.UserID] = protocol.DisplayNameOrDefault(cmd.DisplayName, cmd.UserID)
	m.Mu.Unlock()

	mgr.setConnMeta(connID, cmd.UserID, cmd.MatchID)

	if err := mgr.insertParticipant(ctx, cmd.MatchID, cmd.UserID); err != nil {
		m.Mu.Lock()
		m.removePlayer(cmd.UserID)
		m.Mu.Unlock()
		return &UpstreamError{Op: "insert participant", Err: err}
	}

	mgr.log.Infof("user %s joined match %s", cmd.UserID, cmd.MatchID)
	mgr.record(cmd.MatchID, "player_joined", map[string]any{"userId": cmd.UserID})

	mgr.broadcastPlayerJoined(m, cmd.UserID)
	return nil
}

// Start flips a Waiting match to Playing and broadcasts the first
// question. Only the host may start.
func (mgr *Manager) Start(matchID, requesterID string) error {
	m, ok := mgr.store.Get(matchID)
	if !ok {
		return fmt.Errorf("start %s: %w", matchID, ErrNotFound)
	}

	m.Mu.Lock()
	if m.HostID != requesterID {
		m.Mu.Unlock()
		return fmt.Errorf("start %s: %w: only the host can start the match", matchID, ErrForbidden)
	}
	if m.State != StateWaiting {
		m.Mu.Unlock()
		return fmt.Errorf("start %s: %w: match already started", matchID, ErrInvalidState)
	}
	if len(m.Players) < 1 {
		m.Mu.Unlock()
		return fmt.Errorf("start %s: %w: need at least 1 player", matchID, ErrPrecondition)
	}
	m.State = StatePlaying
	m.CurrentIndex = 0
	m.Mu.Unlock()

	mgr.log.Infof("match %s started by host %s", matchID, requesterID)
	mgr.record(matchID, "match_started", nil)

	mgr.Advance(matchID)
	return nil
}

// SubmitAnswer records the latest answer for (current index, userID).
// Silently ignored when the match is absent or not Playing. Once every
// current player has answered, exactly one advance is scheduled after the
// grace delay; resubmissions never re-trigger it.
func (mgr *Manager) SubmitAnswer(matchID, userID, text string) {
	m, ok := mgr.store.Get(matchID)
	if !ok {
		return
	}

	m.Mu.Lock()
	if m.State != StatePlaying {
		m.Mu.Unlock()
		return
	}
	idx := m.CurrentIndex
	if m.Answers[idx] == nil {
		m.Answers[idx] = make(map[string]string)
	}
	m.Answers[idx][userID] = text

	schedule := m.allAnswered() && !m.advancePending[idx]
	if schedule {
		m.advancePending[idx] = true
	}
	m.Mu.Unlock()

	mgr.record(matchID, "answer_submitted", map[string]any{"userId": userID, "index": idx})

	if schedule {
		time.AfterFunc(mgr.graceDelay, func() {
			mgr.Advance(matchID)
		})
	}
}

// Advance broadcasts the next question, or finishes the match when the
// list is exhausted. Safe against deletion at any time: a timer firing
// against a missing match is a no-op, as is advancing a Finished match.
func (mgr *Manager) Advance(matchID string) {
	m, ok := mgr.store.Get(matchID)
	if !ok {
		return
	}

	m.Mu.Lock()
	if m.State != StatePlaying {
		m.Mu.Unlock()
		return
	}
	q, remaining := NextQuestion(m.Questions, m.CurrentIndex)
	if remaining {
		idx := m.CurrentIndex
		m.CurrentIndex++
		m.Mu.Unlock()

		mgr.record(matchID, "question_advanced", map[string]any{"index": idx})
		mgr.send(matchID, protocol.Envelope{
			Type: protocol.TypeNewQuestion,
			Payload: map[string]any{
				"index":    idx,
				"question": q,
			},
		})
		return
	}

	m.State = StateFinished
	answers := m.answersSnapshot()
	m.Mu.Unlock()

	mgr.log.Infof("match %s finished", matchID)
	mgr.record(matchID, "match_finished", nil)
	mgr.send(matchID, protocol.Envelope{
		Type:    protocol.TypeMatchFinished,
		Payload: map[string]any{"answers": answers},
	})

	time.AfterFunc(mgr.retention, func() {
		if mgr.store.Delete(matchID) {
			mgr.log.Infof("match %s reaped after retention window", matchID)
		}
	})
}

// Cleanup force-deletes a match, e.g. from an administrative endpoint.
// All pending timers for it degrade to no-ops.
func (mgr *Manager) Cleanup(matchID string) bool {
	return mgr.store.Delete(matchID)
}

// broadcastPlayerJoined announces a join to every connection of the match.
func (mgr *Manager) broadcastPlayerJoined(m *Match, userID string) {
	m.Mu.Lock()
	players := m.playersSnapshot()
	name := m.Names[userID]
	m.Mu.Unlock()

	mgr.send(m.ID, protocol.Envelope{
		Type: protocol.TypePlayerJoined,
		Payload: map[string]any{
			"message":     fmt.Sprintf("%s has joined", name),
			"userId":      userID,
			"players":     players,
			"displayName": name,
		},
	})
}

func (mgr *Manager) send(matchID string, env protocol.Envelope) {
	if mgr.broadcast == nil {
		return
	}
	mgr.broadcast(matchID, env)
}

func (mgr *Manager) insertParticipant(ctx context.Context, matchID, userID string) error {
	if mgr.participants == nil {
		return nil
	}
	return mgr.participants.InsertParticipant(ctx, matchID, userID)
}

func (mgr *Manager) setConnMeta(connID uuid.UUID, userID, matchID string) {
	if mgr.registry == nil {
		return
	}
	mgr.registry.SetMeta(connID, registry.Meta{UserID: userID, MatchID: matchID})
}

func (mgr *Manager) record(matchID, event string, payload map[string]any) {
	if mgr.journal == nil {
		return
	}
	mgr.journal(matchID, event, payload)
}
