package gemini

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/audio"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIVE SESSION
// ══════════════════════════════════════════════════════════════════════════════

const liveSetupTimeout = 15 * time.Second

// LiveOptions configures one live voice session.
type LiveOptions struct {
	Model             string
	VoiceName         string
	SystemInstruction string
}

// LiveEvent is one decoded server frame. Audio is 24 kHz PCM16.
type LiveEvent struct {
	Audio        []byte
	Interrupted  bool
	TurnComplete bool
	GoAway       bool
}

// LiveSession is an open bidirectional audio session. SendAudio may be called
// concurrently with Receive; Receive must be called from one goroutine.
type LiveSession struct {
	sess      *genai.Session
	sendMu    sync.Mutex
	closeOnce sync.Once
	log       *logger.Logger
}

// ConnectLive opens a session through Live.Connect and waits for
// setupComplete, so a session returned here is ready for audio.
func (c *Client) ConnectLive(ctx context.Context, opts LiveOptions) (*LiveSession, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var sess *LiveSession
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		s, err := c.dialLive(ctx, opts)
		sess = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (c *Client) dialLive(ctx context.Context, opts LiveOptions) (*LiveSession, error) {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if opts.VoiceName != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.VoiceName},
		}}
	}
	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, RoleUser)
	}

	gs, err := c.live.Live.Connect(ctx, opts.Model, cfg)
	if err != nil {
		return nil, classifyLive("connect", err)
	}

	s := &LiveSession{
		sess: gs,
		log:  c.log.With(logger.Model(opts.Model)),
	}
	if err := s.awaitSetup(ctx); err != nil {
		_ = gs.Close()
		return nil, err
	}
	s.log.Info("live session opened")
	return s, nil
}

// awaitSetup reads until setupComplete. Connect has no read deadline, so the
// wait runs in a goroutine and closing the session unblocks it.
func (s *LiveSession) awaitSetup(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		for {
			m, err := s.sess.Receive()
			if err != nil {
				done <- classifyLive("setup", err)
				return
			}
			if m.SetupComplete != nil {
				done <- nil
				return
			}
		}
	}()

	timer := time.NewTimer(liveSetupTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = s.sess.Close()
		<-done
		return classifyTransport(ctx, "ConnectLive", ctx.Err())
	case <-timer.C:
		_ = s.sess.Close()
		<-done
		return shared.WrapError("gemini", "Live", shared.ErrGeminiTimeout, "live setup timed out", nil)
	}
}

// SendAudio streams one chunk of 16 kHz PCM16 microphone audio.
func (s *LiveSession) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: audio.InputMIMEType, Data: pcm},
	})
	if err != nil {
		return classifyLive("send", err)
	}
	return nil
}

// Receive blocks until the next meaningful server frame. It returns io.EOF
// when the server closed the session normally.
func (s *LiveSession) Receive() (LiveEvent, error) {
	for {
		m, err := s.sess.Receive()
		if err != nil {
			return LiveEvent{}, classifyLive("receive", err)
		}

		var ev LiveEvent
		if m.GoAway != nil {
			ev.GoAway = true
		}
		if sc := m.ServerContent; sc != nil {
			ev.Interrupted = sc.Interrupted
			ev.TurnComplete = sc.TurnComplete
			ev.Audio = turnAudio(sc.ModelTurn)
		}
		if len(ev.Audio) > 0 || ev.Interrupted || ev.TurnComplete || ev.GoAway {
			return ev, nil
		}
	}
}

// Close ends the session. It is safe to call more than once.
func (s *LiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sess.Close()
		s.log.Info("live session closed")
	})
	return err
}

func turnAudio(turn *genai.Content) []byte {
	if turn == nil {
		return nil
	}
	var pcm []byte
	for _, p := range turn.Parts {
		if p == nil || p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
			continue
		}
		pcm = append(pcm, p.InlineData.Data...)
	}
	return pcm
}

// classifyLive maps websocket errors. A normal close becomes io.EOF.
func classifyLive(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return shared.ErrVoiceSessionClosed
	}
	var hs *websocket.CloseError
	if errors.As(err, &hs) && hs.Code == websocket.ClosePolicyViolation {
		return &rejectedError{err: shared.WrapError("gemini", "Live", shared.ErrExternalService, "live "+op+" rejected", err)}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return shared.WrapError("gemini", "Live", shared.ErrGeminiTimeout, "live "+op+" timed out", err)
	}
	return shared.WrapError("gemini", "Live", shared.ErrGeminiUnavailable, "live "+op+" failed", err)
}
