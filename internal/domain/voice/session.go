// Package voice описывает голосовую сессию как небольшой конечный автомат.
//
// Состояния: Idle → Connecting → Active → Idle, и терминальное Closed.
// Сам websocket живёт только в адаптере Gemini Live; здесь лишь правила
// переходов и флаг «микрофон выключен».
package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// State - состояние голосовой сессии.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosed     State = "closed"
)

// Event - событие, вызывающее переход.
type Event string

const (
	EventStart     Event = "start"     // пользователь запускает сессию
	EventConnected Event = "connected" // провайдер подтвердил setup
	EventFailed    Event = "failed"    // ошибка подключения или транспорта
	EventStop      Event = "stop"      // пользователь или провайдер завершили разговор
	EventClose     Event = "close"     // освобождение ресурсов, сессия больше не используется
)

// transitions - допустимые переходы. Close разрешён из любого состояния.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateConnecting,
		EventStop:  StateIdle,
	},
	StateConnecting: {
		EventConnected: StateActive,
		EventFailed:    StateIdle,
		EventStop:      StateIdle,
	},
	StateActive: {
		EventFailed: StateIdle,
		EventStop:   StateIdle,
	},
}

// Next возвращает состояние после события или ErrVoiceTransition.
func Next(from State, ev Event) (State, error) {
	if ev == EventClose {
		return StateClosed, nil
	}
	if from == StateClosed {
		return from, shared.ErrVoiceSessionClosed
	}
	to, ok := transitions[from][ev]
	if !ok {
		return from, shared.WrapError("voice", "Transition", shared.ErrVoiceTransition,
			"invalid voice session transition", fmt.Errorf("%s on %s", ev, from))
	}
	return to, nil
}

// Change - запись о переходе, передаётся наблюдателю.
type Change struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}

// Session - потокобезопасная голосовая сессия ученика.
type Session struct {
	ID        string
	StudentID string

	mu       sync.Mutex
	state    State
	muted    bool
	onChange func(Change)
	now      func() time.Time
}

// NewSession создаёт сессию в состоянии Idle. onChange может быть nil;
// он вызывается синхронно после каждого успешного перехода.
func NewSession(id, studentID string, onChange func(Change)) *Session {
	return &Session{
		ID:        id,
		StudentID: studentID,
		state:     StateIdle,
		onChange:  onChange,
		now:       time.Now,
	}
}

// State возвращает текущее состояние.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fire применяет событие.
func (s *Session) Fire(ev Event) error {
	s.mu.Lock()
	from := s.state
	to, err := Next(from, ev)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = to
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil && from != to {
		cb(Change{From: from, To: to, Event: ev, At: s.now()})
	}
	return nil
}

// SetMuted включает или выключает отправку входного аудио.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// Muted сообщает, выключен ли микрофон.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// AcceptsInput сообщает, нужно ли пересылать входной аудио-кадр провайдеру.
// Кадры отбрасываются без ошибки, пока сессия не активна или микрофон выключен.
func (s *Session) AcceptsInput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive && !s.muted
}
