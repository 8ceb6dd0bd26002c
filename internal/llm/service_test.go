package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReply = `Here you go:
{"summarized_conflicts": ["The name is too close to an existing company."],
 "recommended_names": [
  {"name": "Orbit Automata Private Limited", "reason": "distinct"},
  {"name": "Kinetic Forge Private Limited", "reason": "distinct"},
  {"name": "Servo Minds Private Limited", "reason": "distinct"}
 ]}`

type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	models  []string
	prompts []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, model, _, user string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.models)
	p.models = append(p.models, model)
	p.prompts = append(p.prompts, user)
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "", errors.New("no reply scripted")
}

func newTestService(p Provider) *Service {
	return NewService(p, &config.LlmConfig{FastModel: "fast", SmartModel: "smart", MaxRetries: 3,
		RetryWait: time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var request = model.SuggestionRequest{
	BaseName:     "ACME ROBOTICS PRIVATE LIMITED",
	CheckType:    model.NameCheck,
	Messages:     []string{"Name is too similar to an existing company"},
	SimilarNames: []string{"ACME ROBOTIX PRIVATE LIMITED"},
}

func TestSuggestFirstAttempt(t *testing.T) {
	p := &scriptedProvider{replies: []string{validReply}}

	resp := newTestService(p).Suggest(context.Background(), request)

	assert.Equal(t, []string{"fast"}, p.models)
	assert.Len(t, resp.RecommendedNames, 3)
	assert.Equal(t, "The name is too close to an existing company.", resp.SummarizedConflicts[0])
	assert.Contains(t, p.prompts[0], `"ACME ROBOTICS PRIVATE LIMITED"`)
	assert.Contains(t, p.prompts[0], "- Name is too similar to an existing company")
	assert.Contains(t, p.prompts[0], "- ACME ROBOTIX PRIVATE LIMITED")
}

func TestSuggestEscalatesToSmartModel(t *testing.T) {
	p := &scriptedProvider{
		replies: []string{"not json", "", validReply},
		errs:    []error{nil, errors.New("rate limited")},
	}

	resp := newTestService(p).Suggest(context.Background(), request)

	assert.Equal(t, []string{"fast", "smart", "smart"}, p.models)
	assert.Len(t, resp.RecommendedNames, 3)
}

func TestSuggestFallsBackWhenExhausted(t *testing.T) {
	p := &scriptedProvider{}

	resp := newTestService(p).Suggest(context.Background(), request)

	assert.Len(t, p.models, 3)
	assert.Equal(t, []string{"Analysis failed. Please check the raw error messages."}, resp.SummarizedConflicts)
	assert.Equal(t, Fallback(request.BaseName), resp.RecommendedNames)
}

func TestSuggestStopsWhenCancelled(t *testing.T) {
	p := &scriptedProvider{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := newTestService(p).Suggest(ctx, request)

	assert.LessOrEqual(t, len(p.models), 1)
	assert.Equal(t, Fallback(request.BaseName), resp.RecommendedNames)
}

func TestSuggestWithoutProvider(t *testing.T) {
	resp := newTestService(nil).Suggest(context.Background(), request)

	assert.Equal(t, []string{"Could not connect to the analysis service."}, resp.SummarizedConflicts)
	assert.Len(t, resp.RecommendedNames, 5)
}

func TestParseResponse(t *testing.T) {
	_, err := ParseResponse(`{"summarized_conflicts": [], "recommended_names": [{"name": "A"}, {"name": "B"}]}`)
	require.ErrorIs(t, err, ErrBadResponse)

	_, err = ParseResponse(`{"recommended_names": [{"name": "A"}, {"name": " "}, {"name": "C"}]}`)
	require.ErrorIs(t, err, ErrBadResponse)

	_, err = ParseResponse("I cannot help with that.")
	require.ErrorIs(t, err, ErrBadResponse)

	resp, err := ParseResponse("```json\n" + validReply + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Orbit Automata Private Limited", resp.RecommendedNames[0].Name)
}
