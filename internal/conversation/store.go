// internal/conversation/store.go
package conversation

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"guestflow-engine/internal/common/errors"
	"guestflow-engine/internal/common/logger"
)

// Store is the in-app channel collaborator: it owns conversation threads
// and writes automation messages directly into them.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "conversation"}),
	}
}

// EnsureThread returns the reservation's conversation thread id, creating
// the thread when the reservation has none yet.
func (s *Store) EnsureThread(ctx context.Context, reservationID string) (string, error) {
	var threadID sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT thread_id FROM reservations WHERE id = $1`,
		reservationID).Scan(&threadID)
	if err != nil {
		return "", errors.NewConversationWriteFailedError(err)
	}

	if threadID.Valid && threadID.String != "" {
		return threadID.String, nil
	}

	newID := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO conversation_threads (id, reservation_id, created_at) VALUES ($1, $2, now())`,
		newID, reservationID)
	if err != nil {
		return "", errors.NewConversationWriteFailedError(err)
	}

	s.logger.Info("conversation thread created", map[string]interface{}{
		"reservationId": reservationID,
		"threadId":      newID,
	})
	return newID, nil
}

// WriteMessage appends an automation message to a thread and returns the
// message id.
func (s *Store) WriteMessage(ctx context.Context, threadID, subject, body string) (string, error) {
	messageID := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversation_messages (id, thread_id, sender, subject, body, created_at)
VALUES ($1, $2, 'automation', $3, $4, now())`,
		messageID, threadID, subject, body)
	if err != nil {
		return "", errors.NewConversationWriteFailedError(err)
	}
	return messageID, nil
}
