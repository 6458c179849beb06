package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAT TRANSCRIPT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChatTranscriptRepository implements chat.TranscriptRepository for PostgreSQL.
type ChatTranscriptRepository struct {
	conn *Connection
}

// NewChatTranscriptRepository creates a new ChatTranscriptRepository.
func NewChatTranscriptRepository(conn *Connection) *ChatTranscriptRepository {
	return &ChatTranscriptRepository{conn: conn}
}

var _ chat.TranscriptRepository = (*ChatTranscriptRepository)(nil)

// AppendExchange writes the question and the answer in one transaction so a
// transcript never holds a question without its answer.
func (r *ChatTranscriptRepository) AppendExchange(ctx context.Context, sessionID, studentID string, user, model chat.Message) error {
	query := `
		INSERT INTO chat_messages (session_id, student_id, role, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range []chat.Message{user, model} {
			batch.Queue(query, sessionID, studentID, string(m.Role), m.Text, m.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to append chat exchange: %w", err)
		}
		return nil
	})
}

// ListBySession returns the messages of a student's session in order.
func (r *ChatTranscriptRepository) ListBySession(ctx context.Context, studentID, sessionID string) ([]chat.Message, error) {
	query := `
		SELECT role, text, created_at
		FROM chat_messages
		WHERE session_id = $1 AND student_id = $2
		ORDER BY id
	`

	rows, err := r.conn.Query(ctx, query, sessionID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var role string
		if err := rows.Scan(&role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Role = chat.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, chat.ErrSessionNotFound
	}
	return out, nil
}
