package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/repositories"
)

// Latency-based token estimate used when the upstream reports no usage.
// A rough throughput figure for free-tier models, not a billing number.
const (
	estimatedMsPerCompletionToken = 20
	telemetryWriteTimeout         = 10 * time.Second
)

// TelemetrySink records one event per conversational turn without blocking the caller.
type TelemetrySink interface {
	Record(event *models.TelemetryEvent)
}

// AsyncTelemetrySink queues events and writes them from a single goroutine.
type AsyncTelemetrySink struct {
	repo   repositories.TelemetryRepository
	logger *zap.Logger
	queue  chan *models.TelemetryEvent
	done   chan struct{}
	seq    atomic.Uint64
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewAsyncTelemetrySink creates a sink and starts its writer.
// queueSize bounds the buffer; when full, events are dropped with a warning.
func NewAsyncTelemetrySink(repo repositories.TelemetryRepository, logger *zap.Logger, queueSize int) *AsyncTelemetrySink {
	if queueSize <= 0 {
		queueSize = 256
	}

	s := &AsyncTelemetrySink{
		repo:   repo,
		logger: logger.Named("telemetry"),
		queue:  make(chan *models.TelemetryEvent, queueSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	go s.processQueue()

	return s
}

// Record assigns the event its sequence number and timestamp, then queues it.
// Non-blocking. Events recorded after Close are dropped.
func (s *AsyncTelemetrySink) Record(event *models.TelemetryEvent) {
	event.Sequence = s.seq.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Debug("Telemetry sink closed, dropping event",
			zap.String("request_id", event.RequestID),
			zap.String("role", string(event.Role)))
		return
	}

	select {
	case s.queue <- event:
	default:
		s.logger.Warn("Telemetry queue full, dropping event",
			zap.String("request_id", event.RequestID),
			zap.String("role", string(event.Role)),
			zap.String("model", event.Model))
	}
}

// Close stops accepting events and waits for queued events to be written.
func (s *AsyncTelemetrySink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
}

func (s *AsyncTelemetrySink) processQueue() {
	defer close(s.done)

	for event := range s.queue {
		s.write(event)
	}
}

func (s *AsyncTelemetrySink) write(event *models.TelemetryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryWriteTimeout)
	defer cancel()

	// token_usage holds one document per upstream call, carried by the assistant turn.
	if event.Role == models.RoleAssistant {
		if err := s.repo.SaveUsage(ctx, event); err != nil {
			s.logWriteError("token usage", event, err)
		}
	}
	if err := s.repo.SaveActivity(ctx, event); err != nil {
		s.logWriteError("chat activity", event, err)
		return
	}

	s.logger.Debug("Recorded telemetry event",
		zap.String("request_id", event.RequestID),
		zap.Uint64("sequence", event.Sequence),
		zap.String("role", string(event.Role)),
		zap.String("status", event.Status),
		zap.Int("total_tokens", event.Tokens.Total),
		zap.Bool("estimated", event.Tokens.Estimated))
}

func (s *AsyncTelemetrySink) logWriteError(kind string, event *models.TelemetryEvent, err error) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("request_id", event.RequestID),
		zap.String("role", string(event.Role)),
		zap.Error(err),
	}
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		s.logger.Debug("Telemetry store unavailable", fields...)
		return
	}
	s.logger.Error("Failed to record telemetry", fields...)
}

var _ TelemetrySink = (*AsyncTelemetrySink)(nil)

// TokenCountsFor returns upstream usage verbatim when present, otherwise an
// estimate derived from latency. All three counts always share one source.
func TokenCountsFor(usage *models.TokenUsage, latency time.Duration) models.TokenCounts {
	if usage != nil && usage.TotalTokens > 0 {
		return models.TokenCounts{
			Prompt:     usage.PromptTokens,
			Completion: usage.CompletionTokens,
			Total:      usage.TotalTokens,
		}
	}
	return EstimateTokens(latency)
}

// EstimateTokens approximates counts from latency: one completion token per
// 20ms, prompt half of that, each at least 1. Flagged as estimated.
func EstimateTokens(latency time.Duration) models.TokenCounts {
	completion := int(latency.Milliseconds() / estimatedMsPerCompletionToken)
	if completion < 1 {
		completion = 1
	}
	prompt := completion / 2
	if prompt < 1 {
		prompt = 1
	}
	return models.TokenCounts{
		Prompt:     prompt,
		Completion: completion,
		Total:      prompt + completion,
		Estimated:  true,
	}
}
