package converter

import (
	"context"
	"fmt"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// Backend converts the format pairs it reports as supported.
type Backend interface {
	Supports(from, to domain.Format) bool
	Convert(ctx context.Context, data []byte, from, to domain.Format) ([]byte, error)
}

// Router dispatches a conversion to the first backend supporting the pair.
type Router struct {
	backends []Backend
}

func NewRouter(backends ...Backend) *Router {
	return &Router{backends: backends}
}

func (r *Router) Convert(ctx context.Context, data []byte, from, to domain.Format) ([]byte, error) {
	for _, b := range r.backends {
		if b.Supports(from, to) {
			return b.Convert(ctx, data, from, to)
		}
	}
	return nil, domain.WrapError(domain.ErrConversion, "convert", fmt.Errorf("no converter for %s -> %s", from, to))
}
