package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/audio"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/service"
)

// echoVoice echoes audio back and reports controls as events.
type echoVoice struct {
	done chan error
}

func (v *echoVoice) Run(_ context.Context, st *student.Student, client service.ClientConn) error {
	if err := client.WriteEvent(service.VoiceEvent{Type: "state", Label: st.Name}); err != nil {
		return err
	}
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			v.done <- err
			return nil
		}
		if frame.Control != "" {
			if err := client.WriteEvent(service.VoiceEvent{Type: string(frame.Control)}); err != nil {
				return err
			}
			continue
		}
		if err := client.WriteAudio(frame.Audio); err != nil {
			return err
		}
	}
}

func newVoiceServer(t *testing.T, configured bool) (*httptest.Server, *echoVoice) {
	t.Helper()
	roster := testRoster(t)
	voice := &echoVoice{done: make(chan error, 1)}
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0

	s := NewServer(cfg, Dependencies{
		StartVoiceSession: command.NewStartVoiceSessionHandler(roster, nil, configured),
		Voice:             voice,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, voice
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestVoice_Relay(t *testing.T) {
	ts, voice := newVoiceServer(t, true)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/v1/students/std-3/voice"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello service.VoiceEvent
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "state", hello.Type)
	assert.Equal(t, "K. RAMU", hello.Label)

	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pcm))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, pcm, data)

	// unknown control messages are skipped
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mute"}`)))
	var ev service.VoiceEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "mute", ev.Type)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	select {
	case err := <-voice.done:
		assert.True(t, errors.Is(err, io.EOF))
	case <-time.After(5 * time.Second):
		t.Fatal("voice session did not end")
	}
}

func TestVoice_Float32Format(t *testing.T) {
	ts, _ := newVoiceServer(t, true)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/v1/students/std-1/voice?format=f32"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello service.VoiceEvent
	require.NoError(t, conn.ReadJSON(&hello))

	samples := []float32{0, 0.5, -0.5}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFloat32LE(samples)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	got := audio.Float32LE(data)
	require.Len(t, got, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], got[i], 0.001)
	}
}

func TestVoice_Errors(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		path       string
		want       int
	}{
		{"not configured", false, "/api/v1/students/std-3/voice", http.StatusServiceUnavailable},
		{"unknown student", true, "/api/v1/students/std-99/voice", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newVoiceServer(t, tt.configured)

			_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tt.path), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
