// internal/router/router.go
//
// Package router is the single entry point for inbound envelopes: it
// decodes them, normalizes legacy shapes, dispatches to match operations,
// and converts every failure into an error reply to the originating
// connection. A failure while handling one message never crashes the
// dispatch loop and never affects any other connection.
package router

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/match"
	"github.com/mfigueroa/quizparty/internal/protocol"
	"github.com/mfigueroa/quizparty/internal/registry"
)

// Router dispatches decoded commands to the match manager.
type Router struct {
	manager *match.Manager
	log     *logrus.Logger
}

// New builds a Router over the given manager.
func New(manager *match.Manager, log *logrus.Logger) *Router {
	if log == nil {
		log = logrus.New()
	}
	return &Router{manager: manager, log: log}
}

// Handle processes one raw text frame from conn. Malformed input yields a
// generic error event; unknown types an Unsupported reply.
func (rt *Router) Handle(ctx context.Context, conn *registry.Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Errorf("router: panic handling message from %s: %v", conn.ID, r)
			rt.replyError(conn, "An unexpected error occurred while processing your request", "")
		}
	}()

	in, err := protocol.Decode(raw)
	if err != nil {
		rt.replyError(conn, "Invalid message format", "")
		return
	}

	switch in.Type {
	case protocol.TypeCreateGame:
		rt.handleCreate(ctx, conn, in)
	case protocol.TypeJoinGame:
		rt.handleJoin(ctx, conn, in, raw)
	case protocol.TypeStartGame:
		rt.handleStart(conn, in)
	case protocol.TypeSubmitAnswer:
		rt.handleSubmit(conn, in)
	default:
		rt.log.Warnf("router: unknown message type %q from %s", in.Type, conn.ID)
		rt.replyError(conn, "Unknown message type: "+in.Type, "")
	}
}

func (rt *Router) handleCreate(ctx context.Context, conn *registry.Conn, in protocol.Inbound) {
	var cmd protocol.CreateCommand
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &cmd); err != nil {
			rt.replyError(conn, "Invalid message format", "")
			return
		}
	}
	if cmd.MatchID == "" || cmd.UserID == "" {
		rt.replyError(conn, "Missing required fields: matchId and userId are required", "")
		return
	}
	if err := rt.manager.Create(ctx, conn.ID, cmd); err != nil {
		rt.replyOpError(conn, err, "Match with this ID already exists")
		return
	}
	rt.reply(conn, protocol.Envelope{
		Type: protocol.TypeMatchCreated,
		Payload: map[string]any{
			"matchId": cmd.MatchID,
			"hostId":  cmd.UserID,
		},
	})
}

func (rt *Router) handleJoin(ctx context.Context, conn *registry.Conn, in protocol.Inbound, raw []byte) {
	cmd, err := protocol.DecodeJoin(in, raw)
	if err != nil {
		rt.replyError(conn, "Invalid message format", "")
		return
	}
	if cmd.MatchID == "" || cmd.UserID == "" {
		rt.replyError(conn, "Missing required fields: matchId and userId are required", "")
		return
	}
	if err := rt.manager.Join(ctx, conn.ID, cmd); err != nil {
		rt.replyOpError(conn, err, "User already in match")
		return
	}
}

func (rt *Router) handleStart(conn *registry.Conn, in protocol.Inbound) {
	var cmd protocol.StartCommand
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &cmd); err != nil {
			rt.replyError(conn, "Invalid message format", "")
			return
		}
	}
	if cmd.MatchID == "" || cmd.UserID == "" {
		rt.replyError(conn, "Missing required fields: matchId and userId are required", "")
		return
	}
	if err := rt.manager.Start(cmd.MatchID, cmd.UserID); err != nil {
		rt.replyOpError(conn, err, "")
		return
	}
}

func (rt *Router) handleSubmit(conn *registry.Conn, in protocol.Inbound) {
	var cmd protocol.AnswerCommand
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &cmd); err != nil {
			rt.replyError(conn, "Invalid message format", "")
			return
		}
	}
	if cmd.MatchID == "" || cmd.UserID == "" || cmd.Answer == "" {
		rt.replyError(conn, "Missing required fields: matchId, userId, and answer are required", "")
		return
	}
	// Submit is silent by contract: unknown matches and wrong-phase
	// submissions are ignored without a reply.
	rt.manager.SubmitAnswer(cmd.MatchID, cmd.UserID, cmd.Answer)
}

// replyOpError maps the match error taxonomy onto wire messages.
// conflictMsg distinguishes the two Conflict cases (duplicate match id on
// create, duplicate player on join).
func (rt *Router) replyOpError(conn *registry.Conn, err error, conflictMsg string) {
	var verr *match.ValidationError
	var uerr *match.UpstreamError
	switch {
	case errors.As(err, &verr):
		rt.replyError(conn, verr.Message, "")
	case errors.As(err, &uerr):
		rt.replyError(conn, "Failed to save participant to database", uerr.Err.Error())
	case errors.Is(err, match.ErrNotFound):
		rt.replyError(conn, "Match not found", "")
	case errors.Is(err, match.ErrForbidden):
		rt.replyError(conn, "Only the host can start the match", "")
	case errors.Is(err, match.ErrInvalidState):
		rt.replyError(conn, "Match has already started", "")
	case errors.Is(err, match.ErrPrecondition):
		rt.replyError(conn, "Need at least 1 player to start the match", "")
	case errors.Is(err, match.ErrConflict):
		rt.replyError(conn, conflictMsg, "")
	default:
		rt.log.Warnf("router: unclassified error: %v", err)
		rt.replyError(conn, "An unexpected error occurred while processing your request", "")
	}
}

func (rt *Router) replyError(conn *registry.Conn, message, details string) {
	rt.reply(conn, protocol.NewError(message, details))
}

// reply sends an event to the originating connection only.
func (rt *Router) reply(conn *registry.Conn, env protocol.Envelope) {
	data, err := protocol.Marshal(env)
	if err != nil {
		rt.log.Errorf("router: marshal reply %s: %v", env.Type, err)
		return
	}
	if !conn.Send(data) {
		rt.log.Debugf("router: dropped %s reply to closed connection %s", env.Type, conn.ID)
	}
}
