package server

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/arogyasahayak/sahayak/internal/assistant"
	"github.com/arogyasahayak/sahayak/internal/notify"
	"github.com/arogyasahayak/sahayak/internal/persona"
	"github.com/arogyasahayak/sahayak/internal/providers"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsInbound struct {
	Type      string `json:"type"` // "chat"
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Persona   string `json:"persona"`
	Language  string `json:"language"`
}

type wsOutbound struct {
	Type         string               `json:"type"` // "reply", "notification", "error"
	Reply        string               `json:"reply,omitempty"`
	Status       string               `json:"status,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// wsSession is one live connection. Writes are serialized because the
// reminder pump and the chat loop share the socket.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsSession) send(msg wsOutbound) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

func (s *Server) handleWS(c *gin.Context) {
	if s.cfg.AuthToken != "" && c.Query("token") != s.cfg.AuthToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user := strings.TrimSpace(c.Query("user_id"))
	if user == "" {
		user = userID(c)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	session := &wsSession{conn: conn}
	defer conn.Close()

	s.logger.Info("websocket connected", "user", user)

	// Pump reminder notifications for this user to the socket.
	sub := s.dispatcher.Subscribe()
	defer s.dispatcher.Unsubscribe(sub)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case n, ok := <-sub:
				if !ok {
					return
				}
				if n.UserID != user {
					continue
				}
				if err := session.send(wsOutbound{Type: "notification", Notification: &n}); err != nil {
					return
				}
			}
		}
	}()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "user", user, "error", err)
			}
			return
		}

		if in.Type != "chat" || strings.TrimSpace(in.Message) == "" {
			_ = session.send(wsOutbound{Type: "error", Error: "expected a chat message"})
			continue
		}

		s.serveWSChat(c, session, user, in)
	}
}

func (s *Server) serveWSChat(c *gin.Context, session *wsSession, user string, in wsInbound) {
	sessionID := user + ":" + in.SessionID

	msgs, err := s.hist.Recent(c.Request.Context(), sessionID, historyWindow)
	if err != nil {
		s.logger.Error("loading history", "session", sessionID, "error", err)
		msgs = nil
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: in.Message})

	res, err := s.completeCtx(c.Request.Context(), assistant.Request{
		Messages: msgs,
		Persona:  persona.Parse(in.Persona),
		Language: in.Language,
	})
	if err != nil {
		_ = session.send(wsOutbound{Type: "error", Error: "request timed out"})
		return
	}

	if err := s.hist.Append(c.Request.Context(), sessionID, providers.RoleUser, in.Message); err != nil {
		s.logger.Error("saving user turn", "session", sessionID, "error", err)
	}
	if err := s.hist.Append(c.Request.Context(), sessionID, providers.RoleAssistant, res.Text()); err != nil {
		s.logger.Error("saving assistant turn", "session", sessionID, "error", err)
	}

	_ = session.send(wsOutbound{Type: "reply", Reply: res.Text(), Status: res.Status.String()})
}
