package activity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/internal/record"
)

// ActivityTypeConversationMessage marks notifications produced by private
// conversation replies.
const ActivityTypeConversationMessage = "ConversationMessage"

var errMissingStore = errors.New("activity: record store is required")

// Sink persists batches of queued activities.
type Sink interface {
	InsertActivities(ctx context.Context, activities []record.Activity) error
}

// QueueConfig describes the dependencies for constructing a Queue.
type QueueConfig struct {
	Store  Sink
	Logger *zap.Logger
}

// Queue accumulates notification activities within one request and persists
// them in a single batch on Flush. It is request-scoped and not safe for
// concurrent use.
type Queue struct {
	store   Sink
	logger  *zap.Logger
	pending []record.Activity
}

// NewQueue validates configuration and constructs an empty Queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: cfg.Store, logger: logger}, nil
}

// Queue appends one activity to the pending batch.
func (q *Queue) Queue(entry record.Activity) {
	q.pending = append(q.pending, entry)
}

// Pending returns how many activities await flushing.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// Flush persists every queued activity in one batch and empties the queue.
// The queue is cleared even on failure so a retry does not double-notify.
func (q *Queue) Flush(ctx context.Context) error {
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = nil
	if err := q.store.InsertActivities(ctx, batch); err != nil {
		q.logger.Error("flushing activity queue failed",
			zap.Int("count", len(batch)),
			zap.Error(err))
		return err
	}
	q.logger.Debug("activity queue flushed", zap.Int("count", len(batch)))
	return nil
}
