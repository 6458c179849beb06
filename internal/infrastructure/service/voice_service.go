package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/domain/voice"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/audio"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// LiveStream is an open provider voice session.
type LiveStream interface {
	SendAudio(pcm []byte) error
	Receive() (gemini.LiveEvent, error)
	Close() error
}

// LiveDialer opens provider voice sessions.
type LiveDialer interface {
	DialLive(ctx context.Context, opts gemini.LiveOptions) (LiveStream, error)
}

// GeminiLiveDialer adapts gemini.Client to LiveDialer.
type GeminiLiveDialer struct {
	Client *gemini.Client
}

// DialLive implements LiveDialer.
func (d GeminiLiveDialer) DialLive(ctx context.Context, opts gemini.LiveOptions) (LiveStream, error) {
	return d.Client.ConnectLive(ctx, opts)
}

// ControlKind is a client control command.
type ControlKind string

const (
	ControlMute   ControlKind = "mute"
	ControlUnmute ControlKind = "unmute"
	ControlStop   ControlKind = "stop"
)

// ClientFrame is one frame from the browser: either PCM audio or a control.
type ClientFrame struct {
	Audio   []byte
	Control ControlKind
}

// VoiceEvent is sent to the browser as JSON.
type VoiceEvent struct {
	Type      string      `json:"type"` // "state", "interrupted", "turn_complete", "error"
	SessionID string      `json:"session_id,omitempty"`
	State     voice.State `json:"state,omitempty"`
	Label     string      `json:"label,omitempty"`
	Muted     bool        `json:"muted,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// ClientConn is the browser side of the relay.
type ClientConn interface {
	// ReadFrame blocks for the next frame; io.EOF when the client left.
	ReadFrame() (ClientFrame, error)
	WriteAudio(pcm []byte) error
	WriteEvent(ev VoiceEvent) error
	Close() error
}

// StateLabel returns the Telugu status shown next to the voice button.
func StateLabel(s voice.State) string {
	switch s {
	case voice.StateConnecting:
		return "కనెక్ట్ అవుతోంది..."
	case voice.StateActive:
		return "AI మాట్లాడుతోంది..."
	default:
		return "సిద్ధంగా ఉంది"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// VOICE SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// VoiceService relays audio between a browser and the provider's live API.
type VoiceService struct {
	dialer    LiveDialer
	prompts   Prompts
	model     string
	voiceName string
	log       *logger.Logger
	newID     func() string
}

// NewVoiceService creates a new VoiceService.
func NewVoiceService(dialer LiveDialer, prompts Prompts, model, voiceName string, log *logger.Logger) *VoiceService {
	if log == nil {
		log = logger.Nop()
	}
	return &VoiceService{
		dialer:    dialer,
		prompts:   prompts,
		model:     model,
		voiceName: voiceName,
		log:       log.With(logger.Component("voice")),
		newID:     uuid.NewString,
	}
}

var errClientStopped = errors.New("client stopped the session")

// Run drives one voice session until the client stops, either side closes,
// or ctx is done. Transport failures end the session in the idle state; Run
// reports them to the client and returns nil unless the dial itself failed.
func (s *VoiceService) Run(ctx context.Context, st *student.Student, client ClientConn) error {
	id := s.newID()
	log := s.log.With(logger.SessionID(id), logger.StudentID(st.ID))

	sess := voice.NewSession(id, st.ID, func(ch voice.Change) {
		if err := client.WriteEvent(VoiceEvent{Type: "state", SessionID: id, State: ch.To, Label: StateLabel(ch.To)}); err != nil {
			log.Debug("voice state not delivered", logger.Err(err))
		}
	})
	defer func() {
		_ = sess.Fire(voice.EventClose)
	}()

	if err := sess.Fire(voice.EventStart); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	live, err := s.dialer.DialLive(dialCtx, gemini.LiveOptions{
		Model:             s.model,
		VoiceName:         s.voiceName,
		SystemInstruction: s.prompts.Voice(st),
	})
	cancel()
	if err != nil {
		log.Error("voice session failed to start", logger.Err(err))
		_ = sess.Fire(voice.EventFailed)
		_ = client.WriteEvent(VoiceEvent{Type: "error", SessionID: id, Message: "voice assistant unavailable"})
		return err
	}
	defer live.Close()

	if err := sess.Fire(voice.EventConnected); err != nil {
		return err
	}
	log.Info("voice session active", logger.Model(s.model))
	start := time.Now()
	var spoken int // PCM bytes played to the client; written only by the provider pump

	g, gctx := errgroup.WithContext(ctx)

	// Unblock both pumps once either side is done.
	g.Go(func() error {
		<-gctx.Done()
		_ = live.Close()
		_ = client.Close()
		return nil
	})

	// Browser -> provider.
	g.Go(func() error {
		for {
			frame, err := client.ReadFrame()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return errClientStopped
				}
				return err
			}
			switch frame.Control {
			case ControlMute, ControlUnmute:
				sess.SetMuted(frame.Control == ControlMute)
				_ = client.WriteEvent(VoiceEvent{Type: "state", SessionID: id, State: sess.State(),
					Label: StateLabel(sess.State()), Muted: sess.Muted()})
				continue
			case ControlStop:
				return errClientStopped
			}
			if len(frame.Audio) == 0 || !sess.AcceptsInput() {
				continue
			}
			if err := live.SendAudio(frame.Audio); err != nil {
				return err
			}
		}
	})

	// Provider -> browser.
	g.Go(func() error {
		for {
			ev, err := live.Receive()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return io.EOF
				}
				return err
			}
			if ev.Interrupted {
				if err := client.WriteEvent(VoiceEvent{Type: "interrupted", SessionID: id}); err != nil {
					return err
				}
			}
			if len(ev.Audio) > 0 {
				if err := client.WriteAudio(ev.Audio); err != nil {
					return err
				}
				spoken += len(ev.Audio)
			}
			if ev.TurnComplete {
				_ = client.WriteEvent(VoiceEvent{Type: "turn_complete", SessionID: id})
			}
			if ev.GoAway {
				return io.EOF
			}
		}
	})

	err = g.Wait()
	stats := []logger.Field{
		logger.Duration("duration", time.Since(start)),
		logger.Duration("spoken", audio.Duration(spoken, audio.OutputSampleRate)),
	}
	ended := voice.EventStop
	switch {
	case err == nil, errors.Is(err, errClientStopped), errors.Is(err, io.EOF), errors.Is(err, context.Canceled),
		errors.Is(err, shared.ErrVoiceSessionClosed):
		log.Info("voice session ended", stats...)
	default:
		ended = voice.EventFailed
		log.Warn("voice session failed", append(stats, logger.Err(err))...)
		_ = client.WriteEvent(VoiceEvent{Type: "error", SessionID: id, Message: "voice session interrupted"})
	}
	_ = sess.Fire(ended)
	return nil
}
