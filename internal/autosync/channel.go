package autosync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/temportalflux/wishlist/internal/logging"
	"go.uber.org/zap"
)

type Kind string

const UpdateLists Kind = "update_lists"

// Request asks the sync loop to run a pass.
type Request struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

func NewRequest(reason string) Request {
	return Request{ID: uuid.New().String(), Kind: UpdateLists, Reason: reason}
}

type Handler func(ctx context.Context, req Request) error

// Channel carries sync requests to a single consumer. It holds at most one
// pending request, so submissions made while a pass is queued coalesce.
type Channel struct {
	requests chan Request
	logger   *zap.Logger
}

func NewChannel(logger *zap.Logger) *Channel {
	return &Channel{
		requests: make(chan Request, 1),
		logger:   logger,
	}
}

// TrySend queues req without blocking. It returns false when a request is
// already pending.
func (c *Channel) TrySend(req Request) bool {
	select {
	case c.requests <- req:
		return true
	default:
		c.logger.Debug("sync already pending",
			zap.String("request_id", req.ID),
			zap.String("reason", req.Reason),
		)
		return false
	}
}

// Run handles requests one at a time until ctx is done.
func (c *Channel) Run(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			c.handle(ctx, handle, req)
		}
	}
}

func (c *Channel) handle(ctx context.Context, handle Handler, req Request) {
	log := c.logger.With(
		zap.String("request_id", req.ID),
		zap.String("kind", string(req.Kind)),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("sync handler panicked", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	log.Info("sync started", zap.String("reason", req.Reason))
	if err := handle(logging.WithRequestID(ctx, req.ID), req); err != nil {
		log.Error("sync failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	log.Info("sync finished", zap.Duration("duration", time.Since(start)))
}

// Every submits a request on each tick until ctx is done. A non-positive
// interval disables it.
func (c *Channel) Every(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.TrySend(NewRequest("interval"))
		}
	}
}
