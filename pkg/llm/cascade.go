package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/retry"
)

// Cascade tries a priority-ordered list of models until one succeeds.
// Models are always tried strictly in order and no model is tried twice.
type Cascade struct {
	completer Completer
	delay     *retry.Config
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

// NewCascade creates a cascade over completer. delay controls the pause
// inserted after a rate-limited attempt; nil uses 1s growing to 3s.
func NewCascade(completer Completer, delay *retry.Config, logger *zap.Logger) *Cascade {
	if delay == nil {
		delay = retry.RateLimitConfig(time.Second, 3*time.Second)
	}
	return &Cascade{
		completer: completer,
		delay:     delay,
		sleep:     retry.Sleep,
		logger:    logger.Named("cascade"),
	}
}

// CompleteWithFallback sends the same messages to each model in turn.
func (c *Cascade) CompleteWithFallback(
	ctx context.Context,
	modelIDs []string,
	messages []models.ConversationTurn,
	opts Options,
) (*models.CascadeResult, error) {
	return c.CompleteWithFallbackFunc(ctx, modelIDs, func(string) []models.ConversationTurn {
		return messages
	}, opts)
}

// CompleteWithFallbackFunc is CompleteWithFallback with messages built per model,
// for models that need a different message layout.
//
// A rate-limited attempt is followed by a short delay before the next model.
// Any other failure moves on immediately. When every model fails the result
// is an *AggregateError listing each attempt in order.
func (c *Cascade) CompleteWithFallbackFunc(
	ctx context.Context,
	modelIDs []string,
	build MessageBuilder,
	opts Options,
) (*models.CascadeResult, error) {
	if len(modelIDs) == 0 {
		return nil, newError(KindConfiguration, "", "model list is empty", 0, nil)
	}

	attempts := make([]models.Attempt, 0, len(modelIDs))
	rateLimited := 0

	for i, model := range modelIDs {
		start := time.Now()
		completion, err := c.completer.Complete(ctx, model, build(model), opts)
		elapsed := time.Since(start)

		if err == nil {
			attempts = append(attempts, models.Attempt{Model: model, Elapsed: elapsed})
			if i > 0 {
				c.logger.Info("Fallback model succeeded",
					zap.String("model", model),
					zap.Int("attempt", i+1))
			}
			return &models.CascadeResult{
				Completion: completion,
				Model:      model,
				Attempts:   attempts,
			}, nil
		}

		attempts = append(attempts, models.Attempt{Model: model, Err: err, Elapsed: elapsed})

		kind := KindOf(err)
		if kind == KindConfiguration {
			// Missing key or empty messages fail the same way on every model.
			return nil, err
		}

		c.logger.Warn("Model attempt failed",
			zap.String("model", model),
			zap.Int("attempt", i+1),
			zap.Int("of", len(modelIDs)),
			zap.String("kind", string(kind)),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}

		if kind == KindRateLimited && i < len(modelIDs)-1 {
			wait := retry.Backoff(c.delay, rateLimited)
			rateLimited++
			if err := c.sleep(ctx, wait); err != nil {
				break
			}
		}
	}

	aggErr := &AggregateError{Attempts: attempts}
	c.logger.Error("All models failed",
		zap.Strings("models", aggErr.Models()),
		zap.Error(aggErr))
	return nil, aggErr
}
