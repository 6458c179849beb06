package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/voice"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// fakes
// ──────────────────────────────────────────────────────────────────────────────

type fakeLive struct {
	events chan gemini.LiveEvent
	recvErr error

	mu       sync.Mutex
	sent     [][]byte
	done     chan struct{}
	closeOne sync.Once
}

func newFakeLive() *fakeLive {
	return &fakeLive{events: make(chan gemini.LiveEvent, 8), done: make(chan struct{})}
}

func (l *fakeLive) SendAudio(pcm []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, pcm)
	return nil
}

func (l *fakeLive) Receive() (gemini.LiveEvent, error) {
	select {
	case ev, ok := <-l.events:
		if !ok {
			if l.recvErr != nil {
				return gemini.LiveEvent{}, l.recvErr
			}
			return gemini.LiveEvent{}, io.EOF
		}
		return ev, nil
	case <-l.done:
		return gemini.LiveEvent{}, io.EOF
	}
}

func (l *fakeLive) Close() error {
	l.closeOne.Do(func() { close(l.done) })
	return nil
}

func (l *fakeLive) sentFrames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent...)
}

type fakeDialer struct {
	live *fakeLive
	err  error
	opts gemini.LiveOptions
}

func (d *fakeDialer) DialLive(ctx context.Context, opts gemini.LiveOptions) (LiveStream, error) {
	d.opts = opts
	if d.err != nil {
		return nil, d.err
	}
	return d.live, nil
}

type fakeClient struct {
	frames chan ClientFrame

	mu       sync.Mutex
	audio    [][]byte
	events   []VoiceEvent
	done     chan struct{}
	closeOne sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{frames: make(chan ClientFrame), done: make(chan struct{})}
}

func (c *fakeClient) ReadFrame() (ClientFrame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		return ClientFrame{}, io.EOF
	}
}

func (c *fakeClient) WriteAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, pcm)
	return nil
}

func (c *fakeClient) WriteEvent(ev VoiceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) Close() error {
	c.closeOne.Do(func() { close(c.done) })
	return nil
}

func (c *fakeClient) receivedAudio() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audio)
}

func (c *fakeClient) eventTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *fakeClient) states() []voice.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []voice.State
	for _, ev := range c.events {
		if ev.Type == "state" && (len(out) == 0 || out[len(out)-1] != ev.State) {
			out = append(out, ev.State)
		}
	}
	return out
}

func newVoiceService(d LiveDialer) *VoiceService {
	svc := NewVoiceService(d, DefaultPrompts(), "gemini-live-test", "Zephyr", nil)
	svc.newID = func() string { return "voice-1" }
	return svc
}

func runAsync(t *testing.T, svc *VoiceService, client *fakeClient) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background(), testStudent(), client) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("voice session did not end")
		return nil
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// tests
// ──────────────────────────────────────────────────────────────────────────────

func TestVoiceService_RelaysAndHonoursMute(t *testing.T) {
	live := newFakeLive()
	dialer := &fakeDialer{live: live}
	client := newFakeClient()
	svc := newVoiceService(dialer)
	var logs bytes.Buffer
	svc.log = logger.New(logger.Options{Output: &logs})

	done := runAsync(t, svc, client)

	client.frames <- ClientFrame{Audio: []byte{1, 1}}
	client.frames <- ClientFrame{Control: ControlMute}
	client.frames <- ClientFrame{Audio: []byte{2, 2}}
	client.frames <- ClientFrame{Control: ControlUnmute}
	client.frames <- ClientFrame{Audio: []byte{3, 3}}

	live.events <- gemini.LiveEvent{Audio: []byte{9, 9, 9, 9}}
	live.events <- gemini.LiveEvent{Interrupted: true}
	live.events <- gemini.LiveEvent{TurnComplete: true}
	require.Eventually(t, func() bool {
		types := client.eventTypes()
		return client.receivedAudio() == 1 && len(types) > 0 && types[len(types)-1] == "turn_complete"
	}, time.Second, time.Millisecond)

	client.frames <- ClientFrame{Control: ControlStop}
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, [][]byte{{1, 1}, {3, 3}}, live.sentFrames(), "muted frame dropped")
	assert.Contains(t, client.eventTypes(), "interrupted")
	assert.Equal(t, []voice.State{voice.StateConnecting, voice.StateActive, voice.StateIdle, voice.StateClosed}, client.states())

	assert.Equal(t, "gemini-live-test", dialer.opts.Model)
	assert.Equal(t, "Zephyr", dialer.opts.VoiceName)
	assert.Contains(t, dialer.opts.SystemInstruction, "K. RAMU")

	// 4 байта PCM16 при 24 кГц = 2 сэмпла.
	assert.Contains(t, logs.String(), `"msg":"voice session ended"`)
	assert.Contains(t, logs.String(), `"spoken":83333`)
}

func TestVoiceService_DialFailure(t *testing.T) {
	client := newFakeClient()
	svc := newVoiceService(&fakeDialer{err: errors.New("dial refused")})

	err := svc.Run(context.Background(), testStudent(), client)

	assert.Error(t, err)
	assert.Contains(t, client.eventTypes(), "error")
	assert.Equal(t, []voice.State{voice.StateConnecting, voice.StateIdle, voice.StateClosed}, client.states())
}

func TestVoiceService_ProviderGoAwayEndsSession(t *testing.T) {
	live := newFakeLive()
	client := newFakeClient()
	svc := newVoiceService(&fakeDialer{live: live})

	done := runAsync(t, svc, client)
	live.events <- gemini.LiveEvent{GoAway: true}

	require.NoError(t, waitRun(t, done))
	assert.NotContains(t, client.eventTypes(), "error")
}

func TestVoiceService_ProviderErrorReported(t *testing.T) {
	live := newFakeLive()
	live.recvErr = errors.New("socket reset")
	client := newFakeClient()
	svc := newVoiceService(&fakeDialer{live: live})

	done := runAsync(t, svc, client)
	close(live.events)

	require.NoError(t, waitRun(t, done))
	assert.Contains(t, client.eventTypes(), "error")
	assert.Equal(t, []voice.State{voice.StateConnecting, voice.StateActive, voice.StateIdle, voice.StateClosed}, client.states())
}

func TestVoiceService_ClientLeaves(t *testing.T) {
	live := newFakeLive()
	client := newFakeClient()
	svc := newVoiceService(&fakeDialer{live: live})

	done := runAsync(t, svc, client)
	require.Eventually(t, func() bool {
		s := client.states()
		return len(s) > 0 && s[len(s)-1] == voice.StateActive
	}, time.Second, time.Millisecond)
	_ = client.Close()

	require.NoError(t, waitRun(t, done))
	assert.NotContains(t, client.eventTypes(), "error")
}

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "సిద్ధంగా ఉంది", StateLabel(voice.StateIdle))
	assert.Equal(t, "కనెక్ట్ అవుతోంది...", StateLabel(voice.StateConnecting))
	assert.Equal(t, "AI మాట్లాడుతోంది...", StateLabel(voice.StateActive))
}
