package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"

	myMiddleware "chat-relay/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is owned by the deployment, not the relay
	},
}

type Handler struct {
	hub        *Hub
	log        *slog.Logger
	readLimit  int64
	sendBuffer int
}

func NewHandler(hub *Hub, log *slog.Logger, maxImageChars, sendBuffer int) *Handler {
	if maxImageChars <= 0 {
		maxImageChars = DefaultMaxImageChars
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Handler{
		hub:        hub,
		log:        log,
		readLimit:  int64(maxImageChars + frameOverhead),
		sendBuffer: sendBuffer,
	}
}

// Routes mounts the websocket endpoint behind identityMW and the read-only
// HTTP endpoints.
func (h *Handler) Routes(r chi.Router, identityMW func(http.Handler) http.Handler) {
	r.Get("/healthz", h.Health)
	r.With(identityMW).Get("/ws", h.ServeWs)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/{room}/history", h.RoomHistory)
	})
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id, ok := myMiddleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "identity not resolved", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, h.log, uuid.NewString(), h.sendBuffer)
	if err := h.hub.Register(client, id); err != nil {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.readLimit)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var stats Stats
	if err := h.hub.Do(r.Context(), func(e *Engine) { stats = e.Stats() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	var rooms map[string]int
	if err := h.hub.Do(r.Context(), func(e *Engine) { rooms = e.Registry().Rooms() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) RoomHistory(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	var messages []Message
	if err := h.hub.Do(r.Context(), func(e *Engine) { messages = e.RoomHistory(room) }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, HistoryEvent{Room: room, Messages: messages})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
