package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/audio"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/service"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VOICE WEBSOCKET
// Binary frames carry audio in both directions: 16 kHz mono from the
// browser, 24 kHz mono back. Samples are PCM16 unless the client connects
// with ?format=f32, then raw little-endian float32. Text frames are JSON:
// {"type":"mute"|"unmute"|"stop"} in, service.VoiceEvent out.
// ══════════════════════════════════════════════════════════════════════════════

// VoiceRunner drives one voice session.
type VoiceRunner interface {
	Run(ctx context.Context, st *student.Student, client service.ClientConn) error
}

const (
	voiceWriteWait = 10 * time.Second

	// maxVoiceFrame fits one 4096-sample float32 capture buffer with headroom.
	maxVoiceFrame = 64 << 10
)

// handleVoice handles GET /api/v1/students/{id}/voice
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.deps.StartVoiceSession == nil || s.deps.Voice == nil {
		writeNotConfigured(w, "Voice")
		return
	}

	st, err := s.deps.StartVoiceSession.Handle(r.Context(), command.StartVoiceSessionCommand{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  8 << 10,
		WriteBufferSize: 16 << 10,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	// Voice sessions outlive the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("voice upgrade failed", logger.Err(err))
		return
	}
	conn.SetReadLimit(maxVoiceFrame)

	client := newWSClient(conn, r.URL.Query().Get("format") == "f32")
	defer client.Close()

	if err := s.deps.Voice.Run(r.Context(), st, client); err != nil {
		s.logger.Warn("voice session not started", logger.StudentID(st.ID), logger.Err(err))
	}
}

// controlMessage is a text frame from the browser.
type controlMessage struct {
	Type string `json:"type"`
}

// wsClient adapts a websocket connection to service.ClientConn.
type wsClient struct {
	conn    *websocket.Conn
	float32 bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ service.ClientConn = (*wsClient)(nil)

func newWSClient(conn *websocket.Conn, float32 bool) *wsClient {
	return &wsClient{conn: conn, float32: float32}
}

// ReadFrame implements service.ClientConn. Unknown text frames are skipped.
func (c *wsClient) ReadFrame() (service.ClientFrame, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return service.ClientFrame{}, io.EOF
			}
			return service.ClientFrame{}, err
		}

		switch typ {
		case websocket.BinaryMessage:
			if c.float32 {
				data = audio.FloatToPCM16(audio.Float32LE(data))
			}
			return service.ClientFrame{Audio: data}, nil

		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch kind := service.ControlKind(msg.Type); kind {
			case service.ControlMute, service.ControlUnmute, service.ControlStop:
				return service.ClientFrame{Control: kind}, nil
			}
		}
	}
}

// WriteAudio implements service.ClientConn.
func (c *wsClient) WriteAudio(pcm []byte) error {
	if c.float32 {
		pcm = audio.EncodeFloat32LE(audio.PCM16ToFloat(pcm))
	}
	return c.write(func() error {
		return c.conn.WriteMessage(websocket.BinaryMessage, pcm)
	})
}

// WriteEvent implements service.ClientConn.
func (c *wsClient) WriteEvent(ev service.VoiceEvent) error {
	return c.write(func() error {
		return c.conn.WriteJSON(ev)
	})
}

func (c *wsClient) write(fn func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
	return fn()
}

// Close sends a close frame and closes the connection. Safe to call twice.
func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	return err
}
