package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"healthmate/internal/config"
	"healthmate/internal/models"
	"healthmate/internal/service/ai"
)

// ContextStore is the read facade over persisted user state the assembler
// pulls from.
type ContextStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	LatestMetrics(ctx context.Context, userID int64) (*models.HealthProfile, error)
	MetricsHistory(ctx context.Context, userID int64, since time.Time) (map[string][]models.MetricSample, error)
	DietaryRestrictions(ctx context.Context, userID int64) ([]string, error)
	RecentDomainHistory(ctx context.Context, userID int64, feature string, limit int) ([]models.DomainRecord, error)
}

// HistoryRecorder persists per-feature history entries after a run.
type HistoryRecorder interface {
	AddDomainRecord(ctx context.Context, userID int64, feature string, payload map[string]any) (int64, error)
}

// CompletionClient is the single-turn text completion interface stages call.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string, params ai.SamplingParams) (string, error)
}

// ConversationLog is the session and message surface conversational
// features read from and append to.
type ConversationLog interface {
	GetOrCreateActiveSession(ctx context.Context, userID int64, sessionType string) (*models.ConversationSession, error)
	AppendMessage(ctx context.Context, conversationID string, sender models.Sender, text string, important bool, entities map[string]any) (*models.Message, error)
	Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
	MessageCount(ctx context.Context, conversationID string) (int, error)
	LatestSummary(ctx context.Context, conversationID string) (*models.ConversationSummary, error)
	MaybeSummarize(ctx context.Context, conversationID string) error
}

// Assembler builds the flat per-request context record from stored state
// plus the inbound payload. It only reads.
type Assembler struct {
	store ContextStore
	log   ConversationLog
	cfg   config.OrchestrationConfig
	entry *logrus.Entry
}

// NewAssembler builds an assembler. log may be nil for deployments without
// conversational features.
func NewAssembler(store ContextStore, log ConversationLog, cfg config.OrchestrationConfig) *Assembler {
	return &Assembler{
		store: store,
		log:   log,
		cfg:   cfg,
		entry: logrus.WithField("component", "assembler"),
	}
}

// Assemble pulls the user profile, the latest metric snapshot, the bounded
// metric history, restrictions, and (when conversationID is set) the
// conversation digest into one RequestContext.
//
// Profile and latest-snapshot reads are load-bearing: their failure aborts
// the request with ErrContextUnavailable. The remaining sub-fetches degrade:
// a failed one is left out and named in Omissions, never faked.
func (a *Assembler) Assemble(ctx context.Context, userID int64, payload map[string]any, conversationID string) (*models.RequestContext, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load user %d: %v", ErrContextUnavailable, userID, err)
	}
	profile, err := a.store.LatestMetrics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load metrics for user %d: %v", ErrContextUnavailable, userID, err)
	}

	rc := &models.RequestContext{
		UserID:        userID,
		QueryText:     stringField(payload, "query_text", "query"),
		Profile:       user,
		HealthProfile: *profile,
		Payload:       payload,
	}

	since := time.Now().AddDate(0, 0, -a.cfg.HistoryWindowDays)
	if history, err := a.store.MetricsHistory(ctx, userID, since); err != nil {
		a.omit(rc, "metrics_history", err)
	} else {
		rc.MetricsHistory = history
	}

	if restrictions, err := a.store.DietaryRestrictions(ctx, userID); err != nil {
		a.omit(rc, "dietary_restrictions", err)
	} else {
		rc.DietaryRestrictions = restrictions
	}

	if conversationID != "" && a.log != nil {
		if conv, err := a.assembleConversation(ctx, user, conversationID); err != nil {
			a.omit(rc, "conversation_context", err)
		} else {
			rc.Conversation = conv
		}
	}
	return rc, nil
}

// assembleConversation folds the session's latest summary and a short tail
// of raw messages into the digest stages interpolate into prompts.
func (a *Assembler) assembleConversation(ctx context.Context, user *models.User, conversationID string) (*models.ConversationContext, error) {
	messages, err := a.log.Messages(ctx, conversationID, a.cfg.ContextMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	count, err := a.log.MessageCount(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	conv := &models.ConversationContext{
		ConversationID: conversationID,
		MessageCount:   count,
	}
	if user != nil {
		conv.UserName = user.Name
		if conv.UserName == "" {
			conv.UserName = user.Username
		}
	}

	// Summaries are optional context; a missing one is normal for a young
	// session.
	if summary, err := a.log.LatestSummary(ctx, conversationID); err == nil && summary != nil {
		conv.SummaryText = summary.SummaryText
		conv.KeyPoints = summary.KeyPoints
	}

	recent := a.cfg.RecentMessageCount
	if len(messages) > recent {
		messages = messages[len(messages)-recent:]
	}
	conv.RecentMessages = messages
	return conv, nil
}

func (a *Assembler) omit(rc *models.RequestContext, field string, err error) {
	rc.Omissions = append(rc.Omissions, field)
	a.entry.WithError(err).WithFields(logrus.Fields{
		"user_id": rc.UserID,
		"field":   field,
	}).Warn("context sub-fetch failed, omitting")
}

func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
