package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

type uploadHandler func(context.Context, domain.UploadEvent) error

// inlineQueue processes upload events in the publishing process. It stands in
// for NATS when no server is configured.
type inlineQueue struct {
	logger *slog.Logger

	mu      sync.RWMutex
	handler uploadHandler
}

func newInlineQueue(logger *slog.Logger) *inlineQueue {
	return &inlineQueue{logger: logger}
}

func (q *inlineQueue) handle(handler uploadHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

// PublishUpload runs the handler synchronously. Handler failures are logged,
// the upload itself stays accepted.
func (q *inlineQueue) PublishUpload(ctx context.Context, event domain.UploadEvent) error {
	q.mu.RLock()
	handler := q.handler
	q.mu.RUnlock()
	if handler == nil {
		return domain.WrapError(domain.ErrTemporary, "publish upload", errors.New("no upload handler"))
	}
	if err := handler(ctx, event); err != nil {
		q.logger.Error("upload_handler_failed",
			"batch", event.Batch,
			"file", event.FileName,
			"error", err,
		)
	}
	return nil
}

// SubscribeUploads replaces the handler and blocks until ctx is done.
func (q *inlineQueue) SubscribeUploads(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error {
	q.handle(handler)
	<-ctx.Done()
	return nil
}
