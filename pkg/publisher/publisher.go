// Package publisher drives the sequential content-publishing loop: one
// item at a time, session validated before every unit of work, randomized
// delays between platform-visible operations.
package publisher

import (
	"context"
	"fmt"
	"time"

	"snpublisher/pkg/config"
	"snpublisher/pkg/logger"
	"snpublisher/pkg/pacing"
	"snpublisher/pkg/retry"
	"snpublisher/pkg/session"
	"snpublisher/pkg/store"
)

// ErrSessionFailed halts the loop: the platform flagged the session and
// human intervention is required before publishing resumes.
var ErrSessionFailed = fmt.Errorf("session failed, publishing halted")

// Queue is the content source consumed by the loop.
type Queue interface {
	GetPending(ctx context.Context, now time.Time) ([]*store.ContentItem, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Poster performs the actual platform upload for one item.
type Poster interface {
	Publish(ctx context.Context, item *store.ContentItem) error
}

// HealthChecker gates every unit of work. Satisfied by *session.Guard.
type HealthChecker interface {
	Validate(ctx context.Context) session.Result
}

// Publisher runs the sequential publishing loop.
type Publisher struct {
	queue   Queue
	poster  Poster
	guard   HealthChecker
	delayer *pacing.Delayer
	limiter pacing.Limiter
	cfg     *config.PublisherConfig
	log     logger.Logger
}

// New creates a publisher over the given collaborators.
func New(queue Queue, poster Poster, guard HealthChecker, cfg *config.PublisherConfig, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Publisher{
		queue:   queue,
		poster:  poster,
		guard:   guard,
		delayer: pacing.NewDelayer(cfg.MinDelay, cfg.MaxDelay),
		limiter: pacing.NewTokenBucket(cfg.RequestsPerMinute, time.Minute),
		cfg:     cfg,
		log:     log,
	}
}

// Run processes all currently due items and returns. Cancellation of ctx
// aborts the inter-item delay and stops cleanly; a Failed session state
// halts immediately with ErrSessionFailed.
func (p *Publisher) Run(ctx context.Context) error {
	items, err := p.queue.GetPending(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to load pending content: %w", err)
	}

	p.log.WithField("count", len(items)).Info("found pending content to publish")

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			p.log.Info("shutdown requested, stopping publishing loop")
			return err
		}

		p.log.InfoWithFields("processing content", map[string]interface{}{
			"position":     i + 1,
			"total":        len(items),
			"content_id":   item.ID,
			"content_type": item.ContentType,
			"media_type":   item.MediaType,
		})

		if err := p.publishOne(ctx, item); err != nil {
			if err == ErrSessionFailed || err == context.Canceled {
				return err
			}
			p.log.WithError(err).WithField("content_id", item.ID).Error("failed to publish content")
		}

		// Randomized spacing between platform-visible operations.
		// Skipped after the last item.
		if i < len(items)-1 {
			if err := p.delayer.Sleep(ctx); err != nil {
				p.log.Info("shutdown requested during delay, stopping")
				return err
			}
		}
	}

	return nil
}

// publishOne validates the session, uploads a single item, and records
// the outcome in the queue.
func (p *Publisher) publishOne(ctx context.Context, item *store.ContentItem) error {
	if err := p.ensureHealthy(ctx); err != nil {
		if err == ErrSessionFailed {
			if markErr := p.queue.MarkFailed(ctx, item.ID, "session failed"); markErr != nil {
				p.log.WithError(markErr).Warn("failed to record item failure")
			}
		}
		return err
	}

	for !p.limiter.Allow() {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := retry.Do(ctx, func() error {
		return p.poster.Publish(ctx, item)
	}, &retry.Config{
		MaxAttempts: p.cfg.MaxRetries,
		Backoff:     &retry.ConstantBackoff{Delay: p.cfg.RetryDelay},
		RetryIf:     retry.DefaultRetryIf,
		Logger:      p.log,
	})

	if err != nil {
		if markErr := p.queue.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
			p.log.WithError(markErr).Warn("failed to record item failure")
		}
		return fmt.Errorf("publish failed: %w", err)
	}

	if err := p.queue.MarkPublished(ctx, item.ID); err != nil {
		return fmt.Errorf("published but failed to record status: %w", err)
	}

	p.log.WithField("content_id", item.ID).Info("content published")
	return nil
}

// ensureHealthy runs the session guard, retrying degraded outcomes a
// bounded number of times. A failed state never gets retried.
func (p *Publisher) ensureHealthy(ctx context.Context) error {
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		result := p.guard.Validate(ctx)
		switch result.State {
		case session.StateHealthy:
			return nil
		case session.StateFailed:
			p.log.WithField("reason", result.Reason).Error("session failed, halting all publishing")
			return ErrSessionFailed
		default:
			p.log.WarnWithFields("session degraded, retrying validation", map[string]interface{}{
				"attempt": attempt,
				"reason":  result.Reason,
			})
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("session still degraded after %d validation attempts", p.cfg.MaxRetries)
}
