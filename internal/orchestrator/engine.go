package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"healthmate/internal/config"
	"healthmate/internal/models"
	"healthmate/internal/service/ai"
)

// Feature names a graph is registered under.
const (
	FeatureDietAdvice     = "diet_advice"
	FeatureHealthCoaching = "health_coaching"
	FeatureWeeklyReport   = "weekly_report"
	FeatureVoiceQuery     = "voice_query"
	FeatureExercise       = "exercise_recommendation"
)

// graphDef pairs a feature graph with its post-terminal behavior.
type graphDef struct {
	graph *Graph

	// sessionType, when set, makes the feature conversational: runs attach
	// to the active session of this type and append messages on completion.
	sessionType string

	// replyField names the response field appended as the assistant message.
	replyField string

	// record appends the run to the user's per-feature history.
	record bool
}

// Engine owns the feature graphs and runs requests through them. Graphs are
// wired once at construction and shared read-only across requests.
type Engine struct {
	assembler *Assembler
	store     ContextStore
	recorder  HistoryRecorder
	model     CompletionClient
	log       ConversationLog
	cfg       config.OrchestrationConfig
	graphs    map[string]*graphDef
	entry     *logrus.Entry
}

// NewEngine wires the five feature graphs over the given collaborators.
// log and recorder may be nil; conversational attachment and history
// recording are then skipped.
func NewEngine(store ContextStore, recorder HistoryRecorder, model CompletionClient, log ConversationLog, cfg config.OrchestrationConfig) *Engine {
	e := &Engine{
		assembler: NewAssembler(store, log, cfg),
		store:     store,
		recorder:  recorder,
		model:     model,
		log:       log,
		cfg:       cfg,
		entry:     logrus.WithField("component", "orchestrator"),
	}
	e.graphs = map[string]*graphDef{
		FeatureDietAdvice: {
			graph:      e.dietGraph(),
			replyField: "advice",
			record:     true,
		},
		FeatureHealthCoaching: {
			graph:       e.coachingGraph(),
			sessionType: "coaching",
			replyField:  "advice",
		},
		FeatureWeeklyReport: {
			graph:      e.reportGraph(),
			replyField: "metrics_summary",
			record:     true,
		},
		FeatureVoiceQuery: {
			graph:       e.voiceGraph(),
			sessionType: "general",
			replyField:  "response_text",
		},
		FeatureExercise: {
			graph:      e.exerciseGraph(),
			replyField: "recommendation_summary",
			record:     true,
		},
	}
	return e
}

// Run executes one feature request end to end: session attachment for
// conversational features, context assembly, the stage graph, and the
// post-terminal message and history appends. The returned conversation id
// is empty for non-conversational features.
//
// Only context assembly can fail a request. Everything downstream of it
// resolves to the feature's fallback response.
func (e *Engine) Run(ctx context.Context, feature string, userID int64, payload map[string]any, conversationID string) (*models.NormalizedResponse, string, error) {
	def, ok := e.graphs[feature]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	if def.sessionType != "" && e.log != nil && conversationID == "" {
		session, err := e.log.GetOrCreateActiveSession(ctx, userID, def.sessionType)
		if err != nil {
			return nil, "", fmt.Errorf("%w: attach session: %v", ErrContextUnavailable, err)
		}
		conversationID = session.ConversationID
	}

	rc, err := e.assembler.Assemble(ctx, userID, payload, conversationID)
	if err != nil {
		return nil, "", err
	}

	resp := def.graph.Run(ctx, rc)
	e.entry.WithFields(logrus.Fields{
		"feature":  feature,
		"user_id":  userID,
		"fallback": resp.IsFallback,
	}).Info("graph run complete")

	if def.sessionType != "" && e.log != nil && conversationID != "" {
		e.appendExchange(ctx, conversationID, rc, resp, def.replyField)
	}
	if def.record && e.recorder != nil && !resp.IsFallback {
		if _, err := e.recorder.AddDomainRecord(ctx, userID, feature, resp.Fields); err != nil {
			e.entry.WithError(err).WithField("feature", feature).Warn(ErrPersistenceWrite.Error())
		}
	}
	if def.sessionType == "" {
		conversationID = ""
	}
	return resp, conversationID, nil
}

// appendExchange logs the user turn and the assistant reply after the graph
// reached its terminal. The response is already computed, so write failures
// are logged and absorbed.
func (e *Engine) appendExchange(ctx context.Context, conversationID string, rc *models.RequestContext, resp *models.NormalizedResponse, replyField string) {
	if rc.QueryText != "" {
		if _, err := e.log.AppendMessage(ctx, conversationID, models.SenderUser, rc.QueryText, false, nil); err != nil {
			e.entry.WithError(err).Warn(ErrPersistenceWrite.Error())
		}
	}

	reply := resp.String(replyField)
	if reply == "" {
		return
	}
	important := resp.Bool("requires_followup") ||
		resp.String("followup_question") != "" ||
		len(resp.Strings("recommendations")) > 0 ||
		len(resp.Strings("followup_questions")) > 0
	if _, err := e.log.AppendMessage(ctx, conversationID, models.SenderAssistant, reply, important, nil); err != nil {
		e.entry.WithError(err).Warn(ErrPersistenceWrite.Error())
		return
	}

	if err := e.log.MaybeSummarize(ctx, conversationID); err != nil {
		e.entry.WithError(err).WithField("conversation_id", conversationID).Warn("summarization failed")
	}
}

// complete runs one model call with the engine's sampling defaults.
func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	text, err := e.model.Complete(ctx, prompt, ai.SamplingParams{
		Temperature: float32(e.cfg.Temperature),
		MaxTokens:   e.cfg.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return text, nil
}
