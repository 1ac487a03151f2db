package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

// WSHandler upgrades connections and dispatches inbound events to the
// coordinator. One connection serves one client; its role is chosen by the
// events it sends.
type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func NewWSHandler(coordinator *app.Coordinator, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "ws")),
	}
}

type inboundMessage struct {
	Type    domain.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

type joinPayload struct {
	TeamID   int64  `json:"teamId"`
	Nickname string `json:"nickname"`
}

type answerPayload struct {
	ParticipantID int64 `json:"participantId"`
	QuestionID    int64 `json:"questionId"`
	AnswerID      int64 `json:"answerId"`
}

// session is the per-connection state kept by the read loop.
type session struct {
	client        *wsClient
	participantID atomic.Int64
}

// ServeWS upgrades HTTP requests to websockets and wires them into the coordinator.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := newWSClient(uuid.NewString(), conn, h.logger)
	writerDone := make(chan struct{})
	go client.writePump(writerDone)

	h.logger.Debug("ws connected", slog.String("conn_id", client.id))
	defer func() {
		h.coordinator.Disconnect(client)
		client.close()
		<-writerDone
		h.logger.Debug("ws disconnected", slog.String("conn_id", client.id))
	}()

	// Events are handled after the upgrade request has returned, so they
	// must not inherit its context.
	ctx := context.WithoutCancel(r.Context())
	s := &session{client: client}
	client.prepareRead()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed",
					slog.String("conn_id", client.id),
					slog.String("error", err.Error()))
			}
			return
		}
		h.dispatch(ctx, s, inbound)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, s *session, msg inboundMessage) {
	client := s.client
	switch msg.Type {
	case domain.EventAdminConnect, domain.EventDisplayConnect,
		domain.EventAdminStartGame, domain.EventAdminNextQuestion,
		domain.EventAdminShowRanking, domain.EventAdminEndGame:
		gameID, err := decodeGameID(msg.Payload)
		if err != nil {
			h.sendError(client, err)
			return
		}
		h.handleGameCommand(ctx, client, msg.Type, gameID)

	case domain.EventParticipantJoin:
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.TeamID == 0 {
			h.sendError(client, domain.ErrInvalidInput)
			return
		}
		joined, err := h.coordinator.JoinParticipant(ctx, client, p.TeamID, p.Nickname)
		if err != nil {
			h.sendError(client, err)
			return
		}
		s.participantID.Store(joined.ParticipantID)
		client.Send(domain.NewEvent(domain.EventParticipantJoined, joined))

	case domain.EventParticipantAnswer:
		var p answerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(client, domain.ErrInvalidInput)
			return
		}
		if p.ParticipantID == 0 {
			p.ParticipantID = s.participantID.Load()
		}
		h.handleAnswer(ctx, client, p)

	default:
		client.Send(domain.NewEvent(domain.EventError, domain.ErrorPayload{Message: "unsupported message type"}))
	}
}

func (h *WSHandler) handleGameCommand(ctx context.Context, client *wsClient, typ domain.EventType, gameID int64) {
	var err error
	switch typ {
	case domain.EventAdminConnect:
		err = h.coordinator.ConnectAdmin(ctx, client, gameID)
	case domain.EventDisplayConnect:
		err = h.coordinator.ConnectDisplay(ctx, client, gameID)
	case domain.EventAdminStartGame:
		err = h.coordinator.StartGame(ctx, gameID)
	case domain.EventAdminNextQuestion:
		_, err = h.coordinator.NextQuestion(ctx, gameID)
	case domain.EventAdminShowRanking:
		_, err = h.coordinator.ShowRanking(ctx, gameID)
	case domain.EventAdminEndGame:
		err = h.coordinator.EndGame(ctx, gameID)
	}
	if err != nil {
		h.logger.Info("game command rejected",
			slog.String("conn_id", client.id),
			slog.String("event", string(typ)),
			slog.Int64("game_id", gameID),
			slog.String("error", err.Error()))
		h.sendError(client, err)
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, client *wsClient, p answerPayload) {
	result, err := h.coordinator.SubmitAnswer(ctx, p.ParticipantID, p.QuestionID, p.AnswerID)
	if errors.Is(err, domain.ErrTimedOut) {
		client.Send(domain.NewEvent(domain.EventAnswerResult, domain.AnswerResultPayload{
			Success: false,
			Message: "Time is up!",
		}))
		return
	}
	if err != nil {
		h.sendError(client, err)
		return
	}
	client.Send(domain.NewEvent(domain.EventAnswerResult, domain.AnswerResultPayload{
		Success:      true,
		IsCorrect:    result.IsCorrect,
		PointsEarned: result.PointsEarned,
		TimeTaken:    result.TimeTaken,
	}))
}

func (h *WSHandler) sendError(client *wsClient, err error) {
	client.Send(domain.NewEvent(domain.EventError, domain.ErrorPayload{Message: clientMessage(err)}))
}

// clientMessage hides storage details from clients.
func clientMessage(err error) string {
	if errors.Is(err, domain.ErrPersistence) {
		return "internal error, please retry"
	}
	return err.Error()
}

// decodeGameID accepts a bare id (number or string) or {"gameId": id}.
func decodeGameID(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return parseGameID(string(n))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseGameID(s)
	}
	var obj struct {
		GameID json.Number `json:"gameId"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.GameID != "" {
		return parseGameID(string(obj.GameID))
	}
	return 0, domain.ErrInvalidInput
}

func parseGameID(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) {
		return 0, domain.ErrInvalidInput
	}
	return int64(f), nil
}
