package realtime

import (
	"context"
	"errors"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

// Publisher delivers a stored interaction log to subscribers.
type Publisher interface {
	Publish(ctx context.Context, entry domain.InteractionLog) error
}

// MultiPublisher publishes to every wrapped publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, entry domain.InteractionLog) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, domain.InteractionLog) error { return nil }

var (
	_ Publisher = (*Hub)(nil)
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = MultiPublisher(nil)
	_ Publisher = Noop{}
)
