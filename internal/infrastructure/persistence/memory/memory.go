// Package memory holds in-process stores used when Postgres or Redis are not
// configured, and by tests. Everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSES
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisStore implements both analysis.Repository and analysis.Cache.
type AnalysisStore struct {
	mu      sync.RWMutex
	records map[string]*entry
	now     func() time.Time
}

type entry struct {
	rec       analysis.Record
	expiresAt time.Time // zero: never
}

var (
	_ analysis.Repository = (*AnalysisStore)(nil)
	_ analysis.Cache      = (*AnalysisStore)(nil)
)

// NewAnalysisStore creates an empty store.
func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{records: make(map[string]*entry), now: time.Now}
}

func analysisKey(studentID, fingerprint string) string {
	return studentID + ":" + fingerprint
}

// Get returns a copy of the record, or an error matching shared.ErrNotFound
// when absent or expired.
func (s *AnalysisStore) Get(_ context.Context, studentID, fingerprint string) (*analysis.Record, error) {
	s.mu.RLock()
	e, ok := s.records[analysisKey(studentID, fingerprint)]
	s.mu.RUnlock()

	if !ok || (!e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)) {
		return nil, shared.NewDomainError("memory", "AnalysisStore.Get", shared.ErrNotFound, "analysis not found")
	}
	rec := e.rec
	return &rec, nil
}

// Save stores a record without expiry.
func (s *AnalysisStore) Save(ctx context.Context, rec *analysis.Record) error {
	return s.Set(ctx, rec, 0)
}

// Set stores a record; ttl <= 0 means no expiry.
func (s *AnalysisStore) Set(_ context.Context, rec *analysis.Record, ttl time.Duration) error {
	if rec == nil {
		return shared.NewDomainError("memory", "AnalysisStore.Set", shared.ErrInvalidInput, "nil record")
	}
	e := &entry{rec: *rec}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.records[analysisKey(rec.StudentID, rec.Fingerprint)] = e
	s.mu.Unlock()
	return nil
}

// History returns the student's records newest first.
func (s *AnalysisStore) History(_ context.Context, studentID string, limit int) ([]*analysis.Record, error) {
	s.mu.RLock()
	out := make([]*analysis.Record, 0)
	for _, e := range s.records {
		if e.rec.StudentID == studentID {
			rec := e.rec
			out = append(out, &rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

// ChatStore implements chat.HistoryStore and chat.TranscriptRepository.
type ChatStore struct {
	mu          sync.RWMutex
	sessions    map[string]*chat.Session
	transcripts map[string][]transcriptRow
}

type transcriptRow struct {
	studentID string
	msg       chat.Message
}

var (
	_ chat.HistoryStore         = (*ChatStore)(nil)
	_ chat.TranscriptRepository = (*ChatStore)(nil)
)

// NewChatStore creates an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions:    make(map[string]*chat.Session),
		transcripts: make(map[string][]transcriptRow),
	}
}

// Load returns a deep copy so callers never share message slices.
func (s *ChatStore) Load(_ context.Context, sessionID string) (*chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, shared.NewDomainError("memory", "ChatStore.Load", shared.ErrNotFound, "chat session not found")
	}
	return cloneSession(sess), nil
}

// Save implements chat.HistoryStore.
func (s *ChatStore) Save(_ context.Context, sess *chat.Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = cloneSession(sess)
	s.mu.Unlock()
	return nil
}

// Delete implements chat.HistoryStore.
func (s *ChatStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// AppendExchange implements chat.TranscriptRepository.
func (s *ChatStore) AppendExchange(_ context.Context, sessionID, studentID string, user, model chat.Message) error {
	s.mu.Lock()
	s.transcripts[sessionID] = append(s.transcripts[sessionID],
		transcriptRow{studentID, user}, transcriptRow{studentID, model})
	s.mu.Unlock()
	return nil
}

// ListBySession implements chat.TranscriptRepository.
func (s *ChatStore) ListBySession(_ context.Context, studentID, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Message
	for _, row := range s.transcripts[sessionID] {
		if row.studentID == studentID {
			out = append(out, row.msg)
		}
	}
	if len(out) == 0 {
		return nil, chat.ErrSessionNotFound
	}
	return out, nil
}

func cloneSession(in *chat.Session) *chat.Session {
	out := *in
	out.Messages = append([]chat.Message(nil), in.Messages...)
	return &out
}
