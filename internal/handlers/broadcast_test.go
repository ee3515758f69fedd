// internal/handlers/broadcast_test.go
package handlers

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueroa/quizparty/internal/protocol"
	"github.com/mfigueroa/quizparty/internal/registry"
)

func TestBroadcasterReachesOnlyMatchConnections(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	reg := registry.New(log)

	inMatch := reg.Register()
	reg.SetMeta(inMatch.ID, registry.Meta{UserID: "u1", MatchID: "m1"})
	other := reg.Register()
	reg.SetMeta(other.ID, registry.Meta{UserID: "u2", MatchID: "m2"})
	unbound := reg.Register()

	b := NewBroadcaster(reg, log)
	b("m1", protocol.Envelope{Type: protocol.TypeNewQuestion, Payload: map[string]any{"index": 0}})

	select {
	case data := <-inMatch.Out():
		in, err := protocol.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeNewQuestion, in.Type)
	default:
		t.Fatal("match connection received nothing")
	}

	for name, conn := range map[string]*registry.Conn{"other match": other, "unbound": unbound} {
		select {
		case <-conn.Out():
			t.Fatalf("%s connection should not receive the event", name)
		default:
		}
	}
}

func TestBroadcasterSkipsClosedConnections(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	reg := registry.New(log)

	alive := reg.Register()
	reg.SetMeta(alive.ID, registry.Meta{UserID: "u1", MatchID: "m1"})
	dead := reg.Register()
	reg.SetMeta(dead.ID, registry.Meta{UserID: "u2", MatchID: "m1"})
	reg.Remove(dead.ID)

	b := NewBroadcaster(reg, log)
	// Must not panic on the removed connection.
	b("m1", protocol.Envelope{Type: protocol.TypeMatchFinished})

	select {
	case <-alive.Out():
	default:
		t.Fatal("live connection received nothing")
	}
}
