package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/retry"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestCascade(completer Completer) (*Cascade, *recordingSleep) {
	c := NewCascade(completer, retry.RateLimitConfig(time.Second, 3*time.Second), zap.NewNop())
	rs := &recordingSleep{}
	c.sleep = rs.sleep
	return c, rs
}

func TestCascade_StopsAtFirstSuccess(t *testing.T) {
	mock := NewMockCompleter()
	mock.CompleteFunc = func(ctx context.Context, model string, _ []models.ConversationTurn, _ Options) (*models.Completion, error) {
		if model == "first" {
			return nil, RateLimited(model)
		}
		return &models.Completion{Text: "from " + model}, nil
	}
	cascade, rs := newTestCascade(mock)

	result, err := cascade.CompleteWithFallback(context.Background(), []string{"first", "second", "third"}, userTurn("hi"), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, mock.CalledModels())
	assert.Equal(t, "from second", result.Completion.Text)
	assert.Equal(t, "second", result.Model)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, KindRateLimited, KindOf(result.Attempts[0].Err))
	assert.NoError(t, result.Attempts[1].Err)
	assert.Equal(t, []time.Duration{time.Second}, rs.delays)
}

func TestCascade_FirstModelSucceeds(t *testing.T) {
	mock := NewMockCompleter()
	cascade, rs := newTestCascade(mock)

	result, err := cascade.CompleteWithFallback(context.Background(), []string{"a", "b"}, userTurn("hi"), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, mock.CalledModels())
	assert.Equal(t, "a", result.Model)
	assert.Empty(t, rs.delays)
}

func TestCascade_EmptyModelList(t *testing.T) {
	mock := NewMockCompleter()
	cascade, _ := newTestCascade(mock)

	_, err := cascade.CompleteWithFallback(context.Background(), nil, userTurn("hi"), Options{})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Empty(t, mock.Calls())
}

func TestCascade_AllRateLimited(t *testing.T) {
	mock := NewMockCompleter()
	mock.CompleteFunc = func(ctx context.Context, model string, _ []models.ConversationTurn, _ Options) (*models.Completion, error) {
		return nil, RateLimited(model)
	}
	cascade, rs := newTestCascade(mock)
	modelIDs := []string{"m1", "m2", "m3", "m4", "m5"}

	_, err := cascade.CompleteWithFallback(context.Background(), modelIDs, userTurn("hi"), Options{})
	require.Error(t, err)

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, modelIDs, agg.Models())
	assert.True(t, agg.AllKind(KindRateLimited))
	assert.Equal(t, modelIDs, mock.CalledModels())

	// Delay grows per rate-limited attempt and is capped; none after the last model.
	assert.Equal(t, []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3 * time.Second,
	}, rs.delays)
}

func TestCascade_NonRateLimitFailureHasNoDelay(t *testing.T) {
	mock := NewMockCompleter()
	mock.CompleteFunc = func(ctx context.Context, model string, _ []models.ConversationTurn, _ Options) (*models.Completion, error) {
		switch model {
		case "a":
			return nil, UpstreamFailure(model, 502)
		case "b":
			return nil, newError(KindMalformed, model, "no choices", 200, nil)
		}
		return &models.Completion{Text: "ok"}, nil
	}
	cascade, rs := newTestCascade(mock)

	result, err := cascade.CompleteWithFallback(context.Background(), []string{"a", "b", "c"}, userTurn("hi"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "c", result.Model)
	assert.Empty(t, rs.delays)
}

func TestCascade_ConfigurationErrorStops(t *testing.T) {
	mock := NewMockCompleter()
	mock.CompleteFunc = func(ctx context.Context, model string, _ []models.ConversationTurn, _ Options) (*models.Completion, error) {
		return nil, newError(KindConfiguration, model, "no API key", 0, nil)
	}
	cascade, _ := newTestCascade(mock)

	_, err := cascade.CompleteWithFallback(context.Background(), []string{"a", "b"}, userTurn("hi"), Options{})
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Equal(t, []string{"a"}, mock.CalledModels())
}

func TestCascade_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := NewMockCompleter()
	mock.CompleteFunc = func(_ context.Context, model string, _ []models.ConversationTurn, _ Options) (*models.Completion, error) {
		cancel()
		return nil, newError(KindTransport, model, "context canceled", 0, context.Canceled)
	}
	cascade, _ := newTestCascade(mock)

	_, err := cascade.CompleteWithFallback(ctx, []string{"a", "b"}, userTurn("hi"), Options{})
	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, []string{"a"}, mock.CalledModels())
}

func TestCascade_BuilderPerModel(t *testing.T) {
	mock := NewMockCompleter()
	mock.CompleteFunc = func(_ context.Context, model string, _ []models.ConversationTurn, _ Options) (*models.Completion, error) {
		if model == "first" {
			return nil, UpstreamFailure(model, 400)
		}
		return &models.Completion{Text: "ok"}, nil
	}
	cascade, _ := newTestCascade(mock)

	_, err := cascade.CompleteWithFallbackFunc(context.Background(), []string{"first", "second"},
		func(model string) []models.ConversationTurn {
			return userTurn("for " + model)
		}, Options{})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "for first", calls[0].Messages[0].Content)
	assert.Equal(t, "for second", calls[1].Messages[0].Content)
}
