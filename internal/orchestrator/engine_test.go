package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"healthmate/internal/config"
	"healthmate/internal/models"
	"healthmate/internal/service/ai"
)

type fakeStore struct {
	user       *models.User
	profile    *models.HealthProfile
	history    map[string][]models.MetricSample
	historyErr error
	userErr    error
	records    []models.DomainRecord
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeStore) LatestMetrics(ctx context.Context, userID int64) (*models.HealthProfile, error) {
	return f.profile, nil
}

func (f *fakeStore) MetricsHistory(ctx context.Context, userID int64, since time.Time) (map[string][]models.MetricSample, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeStore) DietaryRestrictions(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) RecentDomainHistory(ctx context.Context, userID int64, feature string, limit int) ([]models.DomainRecord, error) {
	return nil, nil
}

func (f *fakeStore) AddDomainRecord(ctx context.Context, userID int64, feature string, payload map[string]any) (int64, error) {
	f.records = append(f.records, models.DomainRecord{UserID: userID, Feature: feature, Payload: payload})
	return int64(len(f.records)), nil
}

type fakeModel struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeModel) Complete(ctx context.Context, prompt string, params ai.SamplingParams) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

type appended struct {
	sender    models.Sender
	text      string
	important bool
}

type fakeLog struct {
	session         *models.ConversationSession
	appends         []appended
	summarizeCalled int
}

func (f *fakeLog) GetOrCreateActiveSession(ctx context.Context, userID int64, sessionType string) (*models.ConversationSession, error) {
	if f.session == nil {
		f.session = &models.ConversationSession{
			ConversationID: "conv-1",
			UserID:         userID,
			SessionType:    sessionType,
			IsActive:       true,
		}
	}
	return f.session, nil
}

func (f *fakeLog) AppendMessage(ctx context.Context, conversationID string, sender models.Sender, text string, important bool, entities map[string]any) (*models.Message, error) {
	f.appends = append(f.appends, appended{sender: sender, text: text, important: important})
	return &models.Message{ConversationID: conversationID, Sender: sender, Text: text}, nil
}

func (f *fakeLog) Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	return nil, nil
}

func (f *fakeLog) MessageCount(ctx context.Context, conversationID string) (int, error) {
	return len(f.appends), nil
}

func (f *fakeLog) LatestSummary(ctx context.Context, conversationID string) (*models.ConversationSummary, error) {
	return nil, nil
}

func (f *fakeLog) MaybeSummarize(ctx context.Context, conversationID string) error {
	f.summarizeCalled++
	return nil
}

func testStore() *fakeStore {
	weight, height, bmi := 70.5, 175.0, 23.0
	return &fakeStore{
		user:    &models.User{ID: 1, Username: "u42", Name: "Sam"},
		profile: &models.HealthProfile{Weight: &weight, Height: &height, BMI: &bmi},
	}
}

func testEngine(store *fakeStore, model CompletionClient, log ConversationLog) *Engine {
	cfg := config.OrchestrationConfig{}
	cfg.SummaryTriggerMessages = config.DefaultSummaryTriggerMessages
	cfg.SummarySourceLimit = config.DefaultSummarySourceLimit
	cfg.HistoryWindowDays = config.DefaultHistoryWindowDays
	cfg.ContextMessageLimit = config.DefaultContextMessageLimit
	cfg.RecentMessageCount = config.DefaultRecentMessageCount
	cfg.Temperature = config.DefaultTemperature
	cfg.MaxOutputTokens = config.DefaultMaxOutputTokens
	return NewEngine(store, store, model, log, cfg)
}

func TestDietAdviceModelFailureYieldsFallback(t *testing.T) {
	store := testStore()
	model := &fakeModel{err: errors.New("backend down")}
	engine := testEngine(store, model, nil)

	payload := map[string]any{
		"current_diet": []any{map[string]any{
			"meal_type":  "lunch",
			"food_items": []any{map[string]any{"name": "rice", "amount": "1 bowl"}},
		}},
	}
	resp, convID, err := engine.Run(context.Background(), FeatureDietAdvice, 1, payload, "")
	if err != nil {
		t.Fatalf("model failure must not surface as an error: %v", err)
	}
	if convID != "" {
		t.Fatalf("diet advice is not conversational, got conversation %q", convID)
	}
	if !resp.IsFallback {
		t.Fatalf("expected fallback response")
	}
	if got := resp.String("advice"); got != dietFallback["advice"] {
		t.Fatalf("advice = %q", got)
	}
	if len(store.records) != 0 {
		t.Fatalf("fallback runs must not be recorded as history")
	}
}

func TestDietAdviceSpecialistRouting(t *testing.T) {
	store := testStore()
	model := &fakeModel{responses: []string{
		`{"route": "specialist"}`,
		`{"advice": "avoid shellfish entirely"}`,
	}}
	engine := testEngine(store, model, nil)

	resp, _, err := engine.Run(context.Background(), FeatureDietAdvice, 1, map[string]any{
		"dietary_restrictions": []any{"shellfish allergy"},
	}, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.IsFallback {
		t.Fatalf("expected parsed advice")
	}
	if got := resp.String("advice"); got != "avoid shellfish entirely" {
		t.Fatalf("advice = %q", got)
	}
	if len(model.prompts) != 2 {
		t.Fatalf("expected classify + advise calls, got %d", len(model.prompts))
	}
	if len(store.records) != 1 || store.records[0].Feature != FeatureDietAdvice {
		t.Fatalf("successful run should be recorded, got %#v", store.records)
	}
}

func TestDietAdviceClassifierGarbageRoutesToGeneral(t *testing.T) {
	store := testStore()
	model := &fakeModel{responses: []string{
		"no json here at all",
		`{"advice": "balanced meals"}`,
	}}
	engine := testEngine(store, model, nil)

	resp, _, err := engine.Run(context.Background(), FeatureDietAdvice, 1, nil, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.IsFallback || resp.String("advice") != "balanced meals" {
		t.Fatalf("garbage classification should still reach the general stage, got %#v", resp)
	}
}

func TestVoiceQueryAppendsExchange(t *testing.T) {
	store := testStore()
	log := &fakeLog{}
	model := &fakeModel{responses: []string{
		`{"response_text": "your BMI is in the healthy range", "requires_followup": true, "followup_question": "do you want a diet plan?", "key_points": [], "recommendations": []}`,
	}}
	engine := testEngine(store, model, log)

	resp, convID, err := engine.Run(context.Background(), FeatureVoiceQuery, 1, map[string]any{
		"query_text": "how is my weight",
	}, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if convID != "conv-1" {
		t.Fatalf("conversation id = %q", convID)
	}
	if resp.String("response_text") == "" {
		t.Fatalf("missing response text: %#v", resp.Fields)
	}
	if len(log.appends) != 2 {
		t.Fatalf("expected user and assistant appends, got %d", len(log.appends))
	}
	if log.appends[0].sender != models.SenderUser || log.appends[1].sender != models.SenderAssistant {
		t.Fatalf("append order wrong: %#v", log.appends)
	}
	if !log.appends[1].important {
		t.Fatalf("reply with a follow-up question must be marked important")
	}
	if log.summarizeCalled != 1 {
		t.Fatalf("summarization hook called %d times", log.summarizeCalled)
	}
}

func TestRunUnknownFeature(t *testing.T) {
	engine := testEngine(testStore(), &fakeModel{}, nil)
	_, _, err := engine.Run(context.Background(), "mystery", 1, nil, "")
	if !errors.Is(err, ErrUnknownFeature) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunUserLoadFailureIsContextUnavailable(t *testing.T) {
	store := testStore()
	store.userErr = errors.New("db gone")
	engine := testEngine(store, &fakeModel{}, nil)
	_, _, err := engine.Run(context.Background(), FeatureDietAdvice, 1, nil, "")
	if !errors.Is(err, ErrContextUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestAssembleRecordsOmissions(t *testing.T) {
	store := testStore()
	store.historyErr = errors.New("history table offline")
	asm := NewAssembler(store, nil, config.OrchestrationConfig{HistoryWindowDays: 90, ContextMessageLimit: 10, RecentMessageCount: 3})

	rc, err := asm.Assemble(context.Background(), 1, map[string]any{}, "")
	if err != nil {
		t.Fatalf("sub-fetch failure must not abort assembly: %v", err)
	}
	found := false
	for _, o := range rc.Omissions {
		if o == "metrics_history" {
			found = true
		}
	}
	if !found {
		t.Fatalf("omission not recorded: %v", rc.Omissions)
	}
	if rc.MetricsHistory != nil {
		t.Fatalf("failed sub-fetch must not be faked")
	}
}

func TestSummarizeFallback(t *testing.T) {
	engine := testEngine(testStore(), &fakeModel{err: errors.New("down")}, nil)
	messages := []*models.Message{
		{Sender: models.SenderUser, Text: "hi"},
		{Sender: models.SenderAssistant, Text: "hello"},
	}
	result := engine.Summarize(context.Background(), "conv-1", messages)
	if !result.IsFallback {
		t.Fatalf("expected fallback summary")
	}
	if result.SummaryText != "2 messages exchanged" {
		t.Fatalf("summary = %q", result.SummaryText)
	}
}

func TestSummarizeParsed(t *testing.T) {
	model := &fakeModel{responses: []string{
		"```json\n{\"summary_text\": \"discussed weight goals\", \"key_points\": [\"wants to lose 5kg\"], \"health_entities\": {\"metrics\": [\"weight\"]}}\n```",
	}}
	engine := testEngine(testStore(), model, nil)
	result := engine.Summarize(context.Background(), "conv-1", []*models.Message{
		{Sender: models.SenderUser, Text: "I want to lose 5kg"},
	})
	if result.IsFallback {
		t.Fatalf("expected parsed summary")
	}
	if result.SummaryText != "discussed weight goals" {
		t.Fatalf("summary = %q", result.SummaryText)
	}
	if len(result.KeyPoints) != 1 || result.KeyPoints[0] != "wants to lose 5kg" {
		t.Fatalf("key points = %v", result.KeyPoints)
	}
}
