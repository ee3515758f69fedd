// internal/client/client.go
//
// Package client implements the connection manager used by quizparty
// clients. It keeps at most one live transport per role, replays the
// role-appropriate command when a connection opens, fans inbound events
// out to subscribers, and auto-reconnects dropped participant
// connections. Hosts are never auto-reconnected; a host that drops has
// to create a fresh match anyway, since matches do not survive their
// retention window.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/protocol"
)

// Role identifies which side of a match a transport serves.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

const (
	// DefaultReconnectDelay is the pause before a dropped participant
	// connection is re-dialed.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultMaxReconnectTries caps consecutive participant reconnect
	// attempts before the manager gives up.
	DefaultMaxReconnectTries = 5

	dialTimeout  = 5 * time.Second
	writeTimeout = 3 * time.Second
)

// Transport is the minimal connection surface the manager needs. The
// production implementation wraps a coder/websocket connection; tests
// substitute in-memory fakes.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Transport to the given URL.
type Dialer func(ctx context.Context, url string) (Transport, error)

// Subscriber receives every inbound raw event frame.
type Subscriber func(raw []byte)

// Identity is what the manager announces when a connection opens.
type Identity struct {
	MatchID     string
	UserID      string
	DisplayName string
}

// Options configures a Manager.
type Options struct {
	ServerURL         string
	ReconnectDelay    time.Duration
	MaxReconnectTries int
	Dialer            Dialer
	Logger            *logrus.Logger
}

// Manager owns the per-role transports and the subscriber list.
type Manager struct {
	mu         sync.Mutex
	opts       Options
	transports map[Role]Transport
	identities map[Role]Identity
	subs       []Subscriber

	// reconnecting is the single-flight guard: at most one participant
	// reconnect may be scheduled or in progress at a time.
	reconnecting bool
	attempts     int
}

// New builds a Manager. Zero option fields fall back to defaults.
func New(opts Options) *Manager {
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectTries == 0 {
		opts.MaxReconnectTries = DefaultMaxReconnectTries
	}
	if opts.Dialer == nil {
		opts.Dialer = dialWebsocket
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Manager{
		opts:       opts,
		transports: make(map[Role]Transport),
		identities: make(map[Role]Identity),
	}
}

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// Default returns the process-wide manager, created on first use.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultMgr = New(Options{})
	})
	return defaultMgr
}

// Subscribe registers a callback for every inbound event. Callbacks run
// in registration order; a panicking callback is logged and skipped
// without blocking delivery to the rest.
func (m *Manager) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Connect dials the server for the given role, announces the identity,
// and starts the read loop. Any previous transport for the role is
// closed and replaced.
func (m *Manager) Connect(ctx context.Context, role Role, id Identity) error {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	t, err := m.opts.Dialer(dctx, m.opts.ServerURL)
	cancel()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if old, ok := m.transports[role]; ok {
		old.Close()
	}
	m.transports[role] = t
	m.identities[role] = id
	if role == RoleParticipant {
		m.attempts = 0
	}
	m.mu.Unlock()

	if err := m.announce(t, role, id); err != nil {
		m.mu.Lock()
		if m.transports[role] == t {
			delete(m.transports, role)
		}
		m.mu.Unlock()
		t.Close()
		return err
	}

	go m.readLoop(role, t)
	return nil
}

// announce sends the opening command for the role: hosts create the
// match, participants join it.
func (m *Manager) announce(t Transport, role Role, id Identity) error {
	var env protocol.Envelope
	switch role {
	case RoleHost:
		env = protocol.Envelope{
			Type: protocol.TypeCreateGame,
			Payload: protocol.CreateCommand{
				MatchID:     id.MatchID,
				UserID:      id.UserID,
				DisplayName: id.DisplayName,
			},
		}
	default:
		env = protocol.Envelope{
			Type: protocol.TypeJoinGame,
			Payload: protocol.JoinCommand{
				MatchID:     id.MatchID,
				UserID:      id.UserID,
				DisplayName: id.DisplayName,
			},
		}
	}
	data, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return t.Write(ctx, data)
}

func (m *Manager) readLoop(role Role, t Transport) {
	for {
		data, err := t.Read(context.Background())
		if err != nil {
			m.handleClose(role, t, err)
			return
		}
		m.dispatch(data)
	}
}

// dispatch forwards one frame to every subscriber in registration order.
func (m *Manager) dispatch(raw []byte) {
	m.mu.Lock()
	subs := make([]Subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for i, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.opts.Logger.Errorf("client: subscriber %d panicked: %v", i, r)
				}
			}()
			fn(raw)
		}()
	}
}

// handleClose clears the stored transport and, for participants only,
// schedules a single reconnect attempt after the configured delay.
func (m *Manager) handleClose(role Role, t Transport, err error) {
	t.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transports[role] != t {
		// Already replaced by a newer connection.
		return
	}
	delete(m.transports, role)
	m.opts.Logger.Warnf("client: %s connection closed: %v", role, err)

	if role != RoleParticipant {
		return
	}
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms one reconnect timer if none is pending
// and the attempt budget is not exhausted. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnecting {
		return
	}
	if m.attempts >= m.opts.MaxReconnectTries {
		m.opts.Logger.Errorf("client: giving up after %d reconnect attempts", m.attempts)
		return
	}
	m.reconnecting = true
	m.attempts++
	attempt := m.attempts
	time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.tryReconnect(attempt)
	})
}

func (m *Manager) tryReconnect(attempt int) {
	m.mu.Lock()
	m.reconnecting = false
	id, stillParticipant := m.identities[RoleParticipant]
	_, alreadyOpen := m.transports[RoleParticipant]
	m.mu.Unlock()

	// The role may have been torn down, or a manual Connect may have
	// raced ahead of the timer.
	if !stillParticipant || alreadyOpen {
		return
	}

	m.opts.Logger.Infof("client: reconnect attempt %d for match %s", attempt, id.MatchID)
	if err := m.Connect(context.Background(), RoleParticipant, id); err != nil {
		m.opts.Logger.Warnf("client: reconnect attempt %d failed: %v", attempt, err)
		m.mu.Lock()
		m.scheduleReconnectLocked()
		m.mu.Unlock()
	}
}

// SendMessage writes an envelope over the transport for the given role,
// falling back to any open transport when that role has none. Returns
// false, with no queueing or retry, when nothing is open or the write
// fails.
func (m *Manager) SendMessage(env protocol.Envelope, role Role) bool {
	data, err := protocol.Marshal(env)
	if err != nil {
		m.opts.Logger.Errorf("client: marshal %s: %v", env.Type, err)
		return false
	}

	m.mu.Lock()
	t, ok := m.transports[role]
	if !ok {
		for _, other := range m.transports {
			t, ok = other, true
			break
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := t.Write(ctx, data); err != nil {
		m.opts.Logger.Warnf("client: write %s failed: %v", env.Type, err)
		return false
	}
	return true
}

// Close tears down the transport for a role and forgets its identity,
// which also disables any future auto-reconnect for it.
func (m *Manager) Close(role Role) {
	m.mu.Lock()
	t, ok := m.transports[role]
	delete(m.transports, role)
	delete(m.identities, role)
	m.mu.Unlock()
	if ok {
		t.Close()
	}
}
