package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"healthmate/internal/models"
)

// LatestSummary returns the newest summary row for a session, or nil when
// the session has none yet.
func (s *Service) LatestSummary(ctx context.Context, conversationID string) (*models.ConversationSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT summary_id, conversation_id, summary_text, key_points, health_entities, message_count, created_at
		 FROM conversation_summaries WHERE conversation_id = ?
		 ORDER BY created_at DESC, summary_id DESC LIMIT 1`,
		conversationID,
	)

	var summary models.ConversationSummary
	var keyPoints, entities sql.NullString
	err := row.Scan(&summary.SummaryID, &summary.ConversationID, &summary.SummaryText,
		&keyPoints, &entities, &summary.MessageCount, &summary.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query summary: %w", err)
	}
	if keyPoints.Valid && keyPoints.String != "" {
		_ = json.Unmarshal([]byte(keyPoints.String), &summary.KeyPoints)
	}
	if entities.Valid && entities.String != "" {
		_ = json.Unmarshal([]byte(entities.String), &summary.HealthEntities)
	}
	return &summary, nil
}

// AddSummary appends a new summary row. Rows are never updated; the newest
// one supersedes older ones for retrieval while the rest stay for audit.
func (s *Service) AddSummary(ctx context.Context, conversationID string, in SummaryInput, messageCount int) (*models.ConversationSummary, error) {
	if conversationID == "" || in.SummaryText == "" {
		return nil, errors.New("conversation id and summary text are required")
	}

	keyPoints, err := json.Marshal(in.KeyPoints)
	if err != nil {
		return nil, fmt.Errorf("encode key points: %w", err)
	}
	entities, err := json.Marshal(in.HealthEntities)
	if err != nil {
		return nil, fmt.Errorf("encode health entities: %w", err)
	}

	summary := &models.ConversationSummary{
		SummaryID:      uuid.NewString(),
		ConversationID: conversationID,
		SummaryText:    in.SummaryText,
		KeyPoints:      in.KeyPoints,
		HealthEntities: in.HealthEntities,
		MessageCount:   messageCount,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_summaries (summary_id, conversation_id, summary_text, key_points, health_entities, message_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.SummaryID, conversationID, summary.SummaryText,
		string(keyPoints), string(entities), messageCount, summary.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	return summary, nil
}

// MaybeSummarize runs after every assistant append. It summarizes exactly
// once when the live message count reaches the trigger threshold; growth
// past the threshold waits for the next close.
func (s *Service) MaybeSummarize(ctx context.Context, conversationID string) error {
	if s.summarizer == nil {
		return nil
	}
	count, err := s.MessageCount(ctx, conversationID)
	if err != nil {
		return err
	}
	if count < s.summaryTrigger {
		return nil
	}
	latest, err := s.LatestSummary(ctx, conversationID)
	if err != nil {
		return err
	}
	if latest != nil && latest.MessageCount >= s.summaryTrigger {
		return nil
	}
	return s.summarize(ctx, conversationID, count)
}

// CloseSession deactivates a session and takes a final summary when the
// message count moved since the last one. Closing an already-closed or
// already-summarized session is a no-op.
func (s *Service) CloseSession(ctx context.Context, conversationID string) error {
	session, err := s.Session(ctx, conversationID)
	if err != nil {
		return err
	}

	if session.IsActive {
		_, err = s.db.ExecContext(ctx,
			`UPDATE conversation_sessions SET is_active = 0, updated_at = ? WHERE conversation_id = ?`,
			time.Now().UTC(), conversationID,
		)
		if err != nil {
			return fmt.Errorf("deactivate session: %w", err)
		}
		if s.sessions != nil {
			s.sessions.Invalidate(ctx, session.UserID, session.SessionType)
		}
	}

	if s.summarizer == nil {
		return nil
	}
	count, err := s.MessageCount(ctx, conversationID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	latest, err := s.LatestSummary(ctx, conversationID)
	if err != nil {
		return err
	}
	if latest != nil && latest.MessageCount >= count {
		return nil
	}
	return s.summarize(ctx, conversationID, count)
}

func (s *Service) summarize(ctx context.Context, conversationID string, messageCount int) error {
	messages, err := s.Messages(ctx, conversationID, s.summarySourceLimit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	result := s.summarizer.Summarize(ctx, conversationID, messages)
	if result.IsFallback {
		s.log.WithField("conversation_id", conversationID).Warn("summarization fell back")
	}
	if _, err := s.AddSummary(ctx, conversationID, result, messageCount); err != nil {
		return err
	}
	s.log.WithField("conversation_id", conversationID).Debug("session summarized")
	return nil
}
