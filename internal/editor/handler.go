package editor

import (
	"net/http"
	"time"

	"site-builder/internal/errors"
	"site-builder/internal/project"
	"site-builder/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Handler struct {
	manager  *Manager
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler accepts websocket upgrades from allowedOrigins, any origin when empty
func NewHandler(manager *Manager, allowedOrigins []string, log *zap.Logger) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		manager: manager,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

type EditRequest struct {
	HTML    string   `json:"html"`
	CSS     string   `json:"css"`
	Scripts []string `json:"scripts"`
}

type AIEditRequest struct {
	Instruction string `json:"instruction" binding:"required,max=2000"`
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	userID, _ := utils.UserID(c)
	s, err := h.manager.Get(c.Param("sid"), userID)
	if err != nil {
		c.Error(err)
		return nil, false
	}
	return s, true
}

func (h *Handler) Open(c *gin.Context) {
	projectID, ok := project.ParseID(c)
	if !ok {
		return
	}
	userID, _ := utils.UserID(c)

	s, err := h.manager.Open(c.Request.Context(), projectID, userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) Show(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) Edit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form EditRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	if _, err := s.Edit(State{HTML: form.HTML, CSS: form.CSS, Scripts: form.Scripts}); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": s.save.Status()})
}

func (h *Handler) Save(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.Save(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": s.save.Status()})
}

func (h *Handler) Export(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	archive, err := s.Export()
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+ArchiveName(s.ProjectID)+`"`)
	c.Data(http.StatusOK, "application/zip", archive.Bytes())
}

func (h *Handler) SubmitAIEdit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form AIEditRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	if err := s.SubmitAIEdit(form.Instruction); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, s.ai.Snapshot())
}

// Preview serves the candidate sandboxed, so its scripts never run with our origin
func (h *Handler) Preview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	candidate, err := s.Preview()
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Security-Policy", "sandbox allow-scripts")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(candidate))
}

func (h *Handler) AcceptAIEdit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := s.AcceptAIEdit(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) RejectAIEdit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := s.RejectAIEdit(); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) Close(c *gin.Context) {
	userID, _ := utils.UserID(c)
	if err := h.manager.Close(c.Request.Context(), c.Param("sid"), userID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events streams save status and AI edit changes over a websocket
func (h *Handler) Events(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.log.Warn("websocket upgrade failed", zap.String("session_id", s.ID), zap.Error(err))
		return
	}

	events, unsubscribe := s.Subscribe()
	go h.writePump(conn, s, events, unsubscribe)
	go h.readPump(conn, unsubscribe)
}

// readPump only handles control frames; it ends the subscription when the client goes away
func (h *Handler) readPump(conn *websocket.Conn, unsubscribe func()) {
	defer unsubscribe()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, s *Session, events <-chan Event, unsubscribe func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	// initial state so the client doesn't wait for the first change
	snap := s.Snapshot()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Event{Type: EventStatus, Status: &snap.Status, AI: &snap.AI}); err != nil {
		return
	}

	for {
		select {
		case e, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
