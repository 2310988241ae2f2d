package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

const DefaultPublishTimeout = 2 * time.Second

// LogStore is the persistence the Recorder needs.
type LogStore interface {
	InsertLog(ctx context.Context, entry *domain.InteractionLog) error
	ListLogs(ctx context.Context, sessionID string) ([]domain.InteractionLog, error)
}

// Publisher delivers a stored log to real-time subscribers.
type Publisher interface {
	Publish(ctx context.Context, entry domain.InteractionLog) error
}

// Recorder persists interaction logs and then announces them.
// Publishing runs after the write has succeeded and never affects its result.
type Recorder struct {
	store          LogStore
	publisher      Publisher
	publishTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	wg sync.WaitGroup
}

type Option func(*Recorder)

func WithPublishTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder creates a Recorder. A nil publisher disables publishing.
func NewRecorder(store LogStore, publisher Publisher, opts ...Option) *Recorder {
	r := &Recorder{
		store:          store,
		publisher:      publisher,
		publishTimeout: DefaultPublishTimeout,
		logger:         slog.Default(),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates entry, assigns its id and creation time, persists it and
// returns the stored copy.
func (r *Recorder) Record(ctx context.Context, entry domain.InteractionLog) (domain.InteractionLog, error) {
	entry.SessionID = strings.TrimSpace(entry.SessionID)
	if err := entry.Validate(); err != nil {
		return domain.InteractionLog{}, err
	}

	entry.ID = uuid.Must(uuid.NewV7()).String()
	entry.CreatedAt = r.now()

	if err := r.store.InsertLog(ctx, &entry); err != nil {
		return domain.InteractionLog{}, fmt.Errorf("persist interaction log: %w", err)
	}

	r.publish(entry)
	return entry, nil
}

// Query returns a session's logs ordered by creation time ascending.
func (r *Recorder) Query(ctx context.Context, sessionID string) ([]domain.InteractionLog, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.Required("sessionId")
	}
	logs, err := r.store.ListLogs(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list interaction logs: %w", err)
	}
	return logs, nil
}

// publish hands entry to the publisher on its own goroutine. The request
// context is not used so that a finished request does not cancel delivery.
func (r *Recorder) publish(entry domain.InteractionLog) {
	if r.publisher == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		defer cancel()

		if err := r.publisher.Publish(ctx, entry); err != nil {
			r.logger.Warn("failed to publish interaction",
				"log_id", entry.ID,
				"session_id", entry.SessionID,
				"error", err)
		}
	}()
}

// Close waits for in-flight publishes to finish.
func (r *Recorder) Close() {
	r.wg.Wait()
}
