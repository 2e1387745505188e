package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/synctalk/relay/internal/auth"
	"github.com/synctalk/relay/internal/proto"
	"github.com/synctalk/relay/internal/relay"
	"github.com/synctalk/relay/internal/store"
)

// WSHandler upgrades HTTP connections and bridges them to the relay: it owns
// the connect/authenticate/disconnect lifecycle of one session and maps wire
// frames to relay commands.
type WSHandler struct {
	relay    *relay.Relay
	sessions *SessionTable
	auth     *auth.Service
	store    store.Store
	limiter  *rateLimiter
	log      *zerolog.Logger
}

// NewWSHandler builds the WebSocket gateway handler.
func NewWSHandler(rl *relay.Relay, sessions *SessionTable, authService *auth.Service, st store.Store, connPerMinute int, stop <-chan struct{}, logger *zerolog.Logger) stdhttp.Handler {
	limiter := newRateLimiter(connPerMinute)
	limiter.startReset(stop)

	return &WSHandler{
		relay:    rl,
		sessions: sessions,
		auth:     authService,
		store:    st,
		limiter:  limiter,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if !h.limiter.allow() {
		stdhttp.Error(w, "too many connections", stdhttp.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sessionID := uuid.NewString()
	events := h.sessions.add(sessionID)
	if err := h.relay.OnConnect(sessionID); err != nil {
		h.sessions.remove(sessionID)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	// Cleanup must run even on abnormal disconnects; both calls are idempotent.
	defer func() {
		h.relay.OnDisconnect(sessionID)
		h.sessions.remove(sessionID)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sessionID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, events)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string) error {
	var claims *auth.Claims

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if inbound.Type == proto.InboundTypeHello {
			c, protoErr := h.handleHello(sessionID, inbound)
			if protoErr != nil {
				if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
					return err
				}
				continue
			}
			claims = c
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeEvent,
				Event: proto.InboundTypeHello,
				Data:  map[string]any{"user": claims.Username},
			}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to map inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); writeErr != nil {
				return writeErr
			}
			continue
		}

		h.dispatch(ctx, sessionID, claims, cmd)
	}
}

func (h *WSHandler) handleHello(sessionID string, inbound proto.Inbound) (*auth.Claims, *proto.Error) {
	var hello proto.HelloData
	if err := unmarshalData(inbound.Data, &hello); err != nil || hello.Token == "" {
		return nil, &proto.Error{Code: relay.ErrCodeInvalidArgument, Msg: "token is required"}
	}

	claims, err := h.auth.ValidateToken(hello.Token)
	if err != nil {
		h.log.Debug().Err(err).Str("session_id", sessionID).Msg("ws hello with invalid token")
		return nil, &proto.Error{Code: relay.ErrCodeUnauthorized, Msg: "invalid token"}
	}

	if err := h.relay.OnAuthenticate(sessionID, claims.UserID, claims.Username); err != nil {
		return nil, &proto.Error{Code: relay.ErrCodeUnauthorized, Msg: "session not registered"}
	}
	return claims, nil
}

// dispatch routes one command into the relay. Rejections are reported back
// to this session only; they never tear the connection down.
func (h *WSHandler) dispatch(ctx context.Context, sessionID string, claims *auth.Claims, cmd *relay.Command) {
	var err error
	switch cmd.Kind {
	case relay.CommandJoin:
		err = h.relay.OnJoin(ctx, sessionID, cmd.Room)
	case relay.CommandLeave:
		err = h.relay.OnLeave(sessionID, cmd.Room)
	case relay.CommandSend:
		err = h.handleSend(ctx, sessionID, claims, cmd)
	}
	if err != nil {
		h.relay.ReportError(sessionID, err)
	}
}

// handleSend persists the message and only then hands the envelope to the
// relay, so every delivered newMessage carries its durable ID.
func (h *WSHandler) handleSend(ctx context.Context, sessionID string, claims *auth.Claims, cmd *relay.Command) error {
	if claims == nil {
		return relay.ErrNotAuthenticated
	}

	conversationID, err := strconv.ParseInt(cmd.Room, 10, 64)
	if err != nil {
		return relay.ErrRoomRequired
	}
	if strings.TrimSpace(cmd.Text) == "" && cmd.Media == "" {
		return relay.ErrEmptyMessage
	}

	ok, err := h.store.IsParticipant(ctx, conversationID, claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("participant check failed")
		return relay.ErrNotAMember
	}
	if !ok {
		return relay.ErrNotAMember
	}

	msg := &store.Message{
		ConversationID: conversationID,
		SenderID:       claims.UserID,
		Text:           cmd.Text,
		Media:          cmd.Media,
	}
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to persist message")
		return &relay.Error{Code: relay.ErrCodeInvalidArgument, Message: "message not saved"}
	}

	return h.relay.OnSend(sessionID, relay.Envelope{
		ID:       msg.ID,
		Room:     cmd.Room,
		SenderID: claims.UserID,
		Sender:   claims.Username,
		Text:     msg.Text,
		Media:    msg.Media,
		SentAt:   msg.CreatedAt,
	})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan relay.Event) error {
	for {
		select {
		case event := <-events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
