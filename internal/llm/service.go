package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
)

const (
	MinSuggestions = 3
	MaxSuggestions = 7
)

var ErrBadResponse = errors.New("llm response does not match the expected format")

// Service asks the fast model first and escalates to the smart model on every following attempt.
// When every attempt fails it answers with deterministic fallback suggestions.
type Service struct {
	provider   Provider
	fastModel  string
	smartModel string
	attempts   int
	retryWait  time.Duration
	log        *slog.Logger
}

// NewService returns a service using provider. A nil provider makes every call use the fallback.
func NewService(provider Provider, cfg *config.LlmConfig, log *slog.Logger) *Service {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return &Service{
		provider:   provider,
		fastModel:  cfg.FastModel,
		smartModel: cfg.SmartModel,
		attempts:   attempts,
		retryWait:  cfg.RetryWait,
		log:        log,
	}
}

func (s *Service) Suggest(ctx context.Context, req model.SuggestionRequest) *model.SuggestionResponse {
	if s.provider == nil {
		s.log.Warn("llm provider not configured. using fallback suggestions.")
		return fallbackResponse("Could not connect to the analysis service.", req.BaseName)
	}
	user, err := buildUserPrompt(req)
	if err != nil {
		s.log.Error("failed to build prompt.", slog.String("err", err.Error()))
		return fallbackResponse("An unexpected error occurred during analysis.", req.BaseName)
	}

	var (
		resp    *model.SuggestionResponse
		attempt int
	)
	operation := func() error {
		attempt++
		modelName := s.fastModel
		if attempt > 1 {
			modelName = s.smartModel
		}
		s.log.Info("requesting name suggestions.", slog.String("provider", s.provider.Name()),
			slog.String("model", modelName), slog.Int("attempt", attempt))
		r, err := s.ask(ctx, modelName, user)
		if err != nil {
			s.log.Error("llm call failed.", slog.Int("attempt", attempt), slog.String("err", err.Error()))
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryWait
	b.MaxInterval = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.attempts-1)), ctx)
	if err = backoff.Retry(operation, policy); err != nil {
		s.log.Info("all llm attempts failed. using fallback suggestions.")
		return fallbackResponse("Analysis failed. Please check the raw error messages.", req.BaseName)
	}
	s.log.Info("name suggestions generated.", slog.Int("count", len(resp.RecommendedNames)))
	return resp
}

func (s *Service) ask(ctx context.Context, modelName, user string) (*model.SuggestionResponse, error) {
	content, err := s.provider.Complete(ctx, modelName, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	return ParseResponse(content)
}

// ParseResponse extracts the JSON object from content and checks its shape.
func ParseResponse(content string) (*model.SuggestionResponse, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrBadResponse)
	}

	var resp model.SuggestionResponse
	if err := jsoniter.UnmarshalFromString(content[start:end+1], &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	n := len(resp.RecommendedNames)
	if n < MinSuggestions || n > MaxSuggestions {
		return nil, fmt.Errorf("%w: %d recommended names", ErrBadResponse, n)
	}
	for _, s := range resp.RecommendedNames {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("%w: empty recommended name", ErrBadResponse)
		}
	}
	return &resp, nil
}

func fallbackResponse(summary, baseName string) *model.SuggestionResponse {
	return &model.SuggestionResponse{
		SummarizedConflicts: []string{summary},
		RecommendedNames:    Fallback(baseName),
	}
}
