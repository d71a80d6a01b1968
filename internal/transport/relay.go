package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/store"
)

// Outbox is the queue side of the relay.
type Outbox interface {
	PendingConfirmations(ctx context.Context, limit int) ([]store.Confirmation, error)
	MarkPublished(ctx context.Context, seq int64) error
	MarkFailed(ctx context.Context, seq int64, cause error, maxRetries int) (bool, error)
}

// Sender delivers one confirmation.
type Sender interface {
	Send(ctx context.Context, c store.Confirmation) error
}

// OutboxRelay periodically moves pending confirmations to a Sender.
type OutboxRelay struct {
	logger     *slog.Logger
	outbox     Outbox
	sender     Sender
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxRelay(logger *slog.Logger, outbox Outbox, sender Sender, interval time.Duration, batchSize, maxRetries int) *OutboxRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxRelay{
		logger: logger, outbox: outbox, sender: sender,
		interval: interval, batchSize: batchSize, maxRetries: maxRetries,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "outbox iteration failed",
				"operation", "process_once",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce sends one batch of pending confirmations and returns how many
// were delivered.
func (r *OutboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.PendingConfirmations(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, c := range pending {
		if err := r.sender.Send(ctx, c); err != nil {
			dead, markErr := r.outbox.MarkFailed(ctx, c.Seq, err, r.maxRetries)
			if markErr != nil {
				return delivered, fmt.Errorf("record failure for %s: %w", c.ID, markErr)
			}
			if dead {
				r.logger.ErrorContext(ctx, "confirmation dead-lettered",
					"confirmation_id", c.ID,
					"hbx_enrollment_id", c.HbxEnrollmentID,
					"action", c.ActionURI,
					"retry_count", c.RetryCount+1,
					"error", err,
				)
			} else {
				r.logger.WarnContext(ctx, "confirmation delivery failed",
					"confirmation_id", c.ID,
					"hbx_enrollment_id", c.HbxEnrollmentID,
					"retry_count", c.RetryCount+1,
					"error", err,
				)
			}
			continue
		}
		if err := r.outbox.MarkPublished(ctx, c.Seq); err != nil {
			return delivered, fmt.Errorf("record delivery for %s: %w", c.ID, err)
		}
		delivered++
	}
	if delivered > 0 {
		r.logger.InfoContext(ctx, "confirmations delivered", "count", delivered)
	}
	return delivered, nil
}
