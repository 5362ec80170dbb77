package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"trivia-service/internal/app"
)

type WSHandler struct {
	service  *app.PlayService
	tokens   TokenVerifier
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PlayService, tokens TokenVerifier) *WSHandler {
	return &WSHandler{
		service: service,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type reactPayload struct {
	AnswerID int64 `json:"answerId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and plays a match over them:
// inbound "start" and "react", outbound "question", "matchOver" and "error".
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(r.URL.Query().Get("matchId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid matchId", http.StatusBadRequest)
		return
	}
	userID, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblocks the reader below
				_ = conn.Close()
				return
			}
		}
	}()

	reply := func(res app.PlayResult, err error) {
		switch {
		case err != nil:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		case res.MatchOver:
			send <- outboundMessage[any]{Type: "matchOver", Payload: newPlayView(res)}
		default:
			send <- outboundMessage[any]{Type: "question", Payload: newPlayView(res)}
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			reply(h.service.Start(r.Context(), userID, matchID))
		case "react":
			var payload reactPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid react payload"}}
				continue
			}
			reply(h.service.React(r.Context(), userID, matchID, payload.AnswerID))
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(send)
	<-writerDone
}
