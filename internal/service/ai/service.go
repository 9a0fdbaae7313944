package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthmate/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

// ErrProviderDown is returned when the circuit breaker is open and calls are
// being shed without reaching the provider.
var ErrProviderDown = errors.New("model provider unavailable")

// SamplingParams are the per-call generation knobs.
type SamplingParams struct {
	Temperature float32
	MaxTokens   int
}

// Service is a single-turn text completion adapter over the configured
// provider. Conversation state lives with the caller; every call carries its
// full prompt.
type Service struct {
	chatModel model.BaseChatModel
	provider  string
	modelName string
	breaker   *gobreaker.CircuitBreaker[*schema.Message]
	log       *logrus.Entry
}

// NewService builds the completion adapter for one provider entry from the
// config.
func NewService(ctx context.Context, provider string, provCfg config.ProviderConfig) (*Service, error) {
	var chatModel model.BaseChatModel
	var err error

	modelName := provCfg.Model
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 4096,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	breaker := gobreaker.NewCircuitBreaker[*schema.Message](gobreaker.Settings{
		Name:    "model:" + provider,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("model breaker state change")
		},
	})

	return &Service{
		chatModel: chatModel,
		provider:  provider,
		modelName: modelName,
		breaker:   breaker,
		log:       logrus.WithField("component", "ai").WithField("provider", provider),
	}, nil
}

// Complete runs one prompt through the provider and returns the raw response
// text. Provider failures, cancellation, and an open breaker all surface as
// errors; the caller decides what a failed completion means.
func (s *Service) Complete(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}

	opts := buildOptions(params)
	start := time.Now()
	msg, err := s.breaker.Execute(func() (*schema.Message, error) {
		return s.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.log.WithError(err).Warn("completion shed by breaker")
			return "", ErrProviderDown
		}
		s.log.WithError(err).WithField("elapsed", time.Since(start)).Warn("completion failed")
		return "", fmt.Errorf("generate completion: %w", err)
	}
	if msg == nil || msg.Content == "" {
		return "", errors.New("empty model response")
	}

	s.log.WithFields(logrus.Fields{
		"model":   s.modelName,
		"elapsed": time.Since(start),
	}).Debug("completion ok")
	return msg.Content, nil
}

// Provider reports which provider this adapter talks to.
func (s *Service) Provider() string {
	return s.provider
}

func buildOptions(params SamplingParams) []model.Option {
	var opts []model.Option
	if params.Temperature > 0 {
		opts = append(opts, model.WithTemperature(params.Temperature))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}
	return opts
}
