// internal/handlers/broadcast.go
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/match"
	"github.com/mfigueroa/quizparty/internal/protocol"
	"github.com/mfigueroa/quizparty/internal/registry"
)

// NewBroadcaster returns a match.Broadcaster that fans an event out to
// every registered connection currently bound to the match. The payload
// is marshaled exactly once; per-connection delivery goes through the
// non-blocking outbound queues, so one slow client never stalls the rest.
func NewBroadcaster(reg *registry.Registry, logger *logrus.Logger) match.Broadcaster {
	return func(matchID string, env protocol.Envelope) {
		data, err := protocol.Marshal(env)
		if err != nil {
			logger.Errorf("failed to marshal broadcast event %s for match %s: %v", env.Type, matchID, err)
			return
		}

		conns := reg.ListByMatch(matchID)
		sent := 0
		for _, c := range conns {
			if c.Send(data) {
				sent++
			} else {
				logger.Debugf("dropped %s for match %s to connection %s", env.Type, matchID, c.ID)
			}
		}
		logger.WithFields(logrus.Fields{
			"match": matchID,
			"event": env.Type,
			"sent":  sent,
			"total": len(conns),
		}).Debug("broadcast")
	}
}
