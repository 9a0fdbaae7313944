package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"healthmate/internal/cache"
	"healthmate/internal/models"
)

// Summarizer condenses a message window into a summary record. It must not
// fail; a degraded result is still a result.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID string, messages []*models.Message) SummaryInput
}

// SummaryInput is what a Summarizer hands back for persistence.
type SummaryInput struct {
	SummaryText    string
	KeyPoints      []string
	HealthEntities map[string]any
	IsFallback     bool
}

// Service owns conversation identity, the append-only message log, and
// periodic summarization.
type Service struct {
	db         *sql.DB
	summarizer Summarizer
	sessions   *cache.SessionCache

	// summaryTrigger is the live message count at which a session gets its
	// first summary. summarySourceLimit bounds how many messages feed one
	// summarization call.
	summaryTrigger     int
	summarySourceLimit int

	log *logrus.Entry
}

// NewService builds the conversation log. sessions may be nil to run
// without the advisory cache.
func NewService(db *sql.DB, sessions *cache.SessionCache, summaryTrigger, summarySourceLimit int) *Service {
	return &Service{
		db:                 db,
		sessions:           sessions,
		summaryTrigger:     summaryTrigger,
		summarySourceLimit: summarySourceLimit,
		log:                logrus.WithField("component", "conversation"),
	}
}

// SetSummarizer wires the summarization pipeline in after construction.
// The orchestration engine and this service reference each other, so one
// side has to be attached late.
func (s *Service) SetSummarizer(sum Summarizer) {
	s.summarizer = sum
}

// GetOrCreateActiveSession returns the active session for the pair,
// creating one when none exists. If a data anomaly left several active
// rows, the most recently updated one wins; the rest stay untouched.
func (s *Service) GetOrCreateActiveSession(ctx context.Context, userID int64, sessionType string) (*models.ConversationSession, error) {
	sessionType = strings.TrimSpace(sessionType)
	if userID <= 0 || sessionType == "" {
		return nil, errors.New("invalid session lookup")
	}

	if s.sessions != nil {
		if cached, ok := s.sessions.Get(ctx, userID, sessionType); ok {
			return cached, nil
		}
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, session_type, is_active, created_at, updated_at
		 FROM conversation_sessions
		 WHERE user_id = ? AND session_type = ? AND is_active = 1
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, sessionType,
	)
	session, err := scanSession(row)
	switch {
	case err == nil:
		s.cachePut(ctx, session)
		return session, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to create
	default:
		return nil, fmt.Errorf("query session: %w", err)
	}

	now := time.Now().UTC()
	session = &models.ConversationSession{
		ConversationID: uuid.NewString(),
		UserID:         userID,
		SessionType:    sessionType,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions (conversation_id, user_id, session_type, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		session.ConversationID, userID, sessionType, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.cachePut(ctx, session)
	return session, nil
}

// Session returns one session row by id.
func (s *Service) Session(ctx context.Context, conversationID string) (*models.ConversationSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, session_type, is_active, created_at, updated_at
		 FROM conversation_sessions WHERE conversation_id = ?`, conversationID,
	)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// Sessions lists a user's sessions, newest activity first.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]*models.ConversationSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, user_id, session_type, is_active, created_at, updated_at
		 FROM conversation_sessions WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ConversationSession
	for rows.Next() {
		var sess models.ConversationSession
		if err := rows.Scan(&sess.ConversationID, &sess.UserID, &sess.SessionType,
			&sess.IsActive, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// AppendMessage adds one message to a session and bumps the session's
// updated_at. Messages are immutable once written.
func (s *Service) AppendMessage(ctx context.Context, conversationID string, sender models.Sender, text string, important bool, entities map[string]any) (*models.Message, error) {
	if conversationID == "" || text == "" {
		return nil, errors.New("conversation id and text are required")
	}

	var entitiesJSON any
	if len(entities) > 0 {
		raw, err := json.Marshal(entities)
		if err != nil {
			return nil, fmt.Errorf("encode entities: %w", err)
		}
		entitiesJSON = string(raw)
	}

	now := time.Now().UTC()
	msg := &models.Message{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		IsImportant:    important,
		Entities:       entities,
		CreatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_messages (message_id, conversation_id, sender, text, is_important, entities, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, conversationID, string(sender), text, important, entitiesJSON, now,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_sessions SET updated_at = ? WHERE conversation_id = ?`,
		now, conversationID,
	); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

// Messages returns the newest messages of a session in conversation order,
// up to limit.
func (s *Service) Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, conversation_id, sender, text, is_important, entities, created_at
		 FROM (
			SELECT message_id, conversation_id, sender, text, is_important, entities, created_at
			FROM conversation_messages WHERE conversation_id = ?
			ORDER BY created_at DESC, message_id DESC LIMIT ?
		 ) tail ORDER BY created_at ASC, message_id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var sender string
		var entities sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &sender, &msg.Text,
			&msg.IsImportant, &entities, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender = models.Sender(sender)
		if entities.Valid && entities.String != "" {
			_ = json.Unmarshal([]byte(entities.String), &msg.Entities)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// ImportantMessages returns only the messages flagged important, in
// conversation order, up to limit.
func (s *Service) ImportantMessages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, conversation_id, sender, text, is_important, entities, created_at
		 FROM conversation_messages WHERE conversation_id = ? AND is_important = 1
		 ORDER BY created_at ASC, message_id ASC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query important messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var sender string
		var entities sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &sender, &msg.Text,
			&msg.IsImportant, &entities, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender = models.Sender(sender)
		if entities.Valid && entities.String != "" {
			_ = json.Unmarshal([]byte(entities.String), &msg.Entities)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// MessageCount returns the live message count of a session.
func (s *Service) MessageCount(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversation_messages WHERE conversation_id = ?`, conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *Service) cachePut(ctx context.Context, session *models.ConversationSession) {
	if s.sessions != nil {
		s.sessions.Put(ctx, session)
	}
}

func scanSession(row *sql.Row) (*models.ConversationSession, error) {
	var sess models.ConversationSession
	if err := row.Scan(&sess.ConversationID, &sess.UserID, &sess.SessionType,
		&sess.IsActive, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}
