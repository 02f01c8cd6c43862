package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/tutorvoice/config"
	"github.com/room4-2/tutorvoice/messages"
	"github.com/room4-2/tutorvoice/session"
)

// Server exposes the tutoring session to a local status page.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	client     *session.Client
	hub        *Hub
	config     *config.Config
}

type statusView struct {
	SessionID    string  `json:"sessionId,omitempty"`
	Status       string  `json:"status"`
	Message      string  `json:"message,omitempty"`
	Transcript   string  `json:"transcript"`
	Level        float64 `json:"level"`
	Playing      bool    `json:"playing"`
	DecodeErrors int     `json:"decodeErrors"`
	Clients      int     `json:"clients"`
}

type turnView struct {
	Index       int       `json:"index"`
	User        string    `json:"user"`
	Assistant   string    `json:"assistant"`
	Interrupted bool      `json:"interrupted"`
	AudioBytes  int       `json:"audioBytes"`
	CompletedAt time.Time `json:"completedAt"`
}

func New(cfg *config.Config, client *session.Client, hub *Hub) *Server {
	s := &Server{
		client: client,
		hub:    hub,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Check allowed origins
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/turns", s.handleTurns)
	return mux
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Status server starting on port %d", s.config.Port)
	log.Printf("📡 Status endpoint: ws://localhost:%d/ws", s.config.Port)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down status server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) snapshot() statusView {
	view := statusView{Status: session.Idle.String(), Clients: s.hub.Count()}
	if cur := s.client.Current(); cur != nil {
		snap := cur.Snapshot()
		view.SessionID = snap.ID
		view.Status = snap.Status.String()
		view.Message = snap.Message
		view.Transcript = snap.Transcript
		view.Level = snap.Level
		view.Playing = snap.Playing
		view.DecodeErrors = snap.DecodeErrors
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"session": s.snapshot().Status,
	}
	if active, err := s.client.ActiveSessions(r.Context()); err != nil {
		log.Printf("⚠️ Failed to list active sessions: %v", err)
	} else {
		health["activeSessions"] = len(active)
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := s.client.Turns(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, messages.ErrorPayload{Code: messages.ErrCodeSessionFailed, Message: err.Error()})
		return
	}
	views := make([]turnView, 0, len(turns))
	for _, t := range turns {
		views = append(views, turnView{
			Index:       t.Index,
			User:        t.User,
			Assistant:   t.Assistant,
			Interrupted: t.Interrupted,
			AudioBytes:  t.AudioBytes,
			CompletedAt: t.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newUIConn(uuid.New().String(), conn)
	s.hub.add(c)
	go c.writePump()
	log.Printf("✅ [%s] Status page connected", c.short())

	view := s.snapshot()
	c.queue(messages.NewStatusMessage(view.SessionID, view.Status, view.Message))

	s.readPump(c)

	s.hub.remove(c)
	c.close()
	log.Printf("🔌 [%s] Status page disconnected", c.short())
}

func (s *Server) readPump(c *uiConn) {
	for {
		var req messages.UIRequest
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := sonic.Unmarshal(data, &req); err != nil || req.Type != "control" {
			c.queue(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "expected a control message"))
			continue
		}

		var payload messages.ControlPayload
		if err := sonic.Unmarshal(req.Payload, &payload); err != nil {
			c.queue(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "invalid control payload"))
			continue
		}
		s.handleControl(c, payload.Action)
	}
}

func (s *Server) handleControl(c *uiConn, action string) {
	switch action {
	case messages.ActionPing:
		c.queue(messages.NewPongMessage(s.snapshot().SessionID))

	case messages.ActionStart:
		go func() {
			sess, err := s.client.Start(context.Background())
			if err != nil {
				id, msg := "", "Could not start session"
				if sess != nil {
					snap := sess.Snapshot()
					id, msg = snap.ID, snap.Message
				}
				c.queue(messages.NewErrorMessage(id, errorCode(err), msg))
			}
		}()

	case messages.ActionStop:
		if err := s.client.Stop(); err != nil {
			log.Printf("⚠️ [%s] Stop reported: %v", c.short(), err)
		}

	default:
		c.queue(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "unknown action: "+action))
	}
}

func errorCode(err error) string {
	var ce *session.CaptureError
	if errors.As(err, &ce) {
		return messages.ErrCodeCaptureFailed
	}
	var te *session.TransportError
	if errors.As(err, &te) {
		return messages.ErrCodeTransportFailed
	}
	return messages.ErrCodeSessionFailed
}
