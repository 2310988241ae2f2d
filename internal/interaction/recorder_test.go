package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	"github.com/semihsipahi/climblearn-api/internal/store"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.InteractionLog
	err       error
	block     chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, entry domain.InteractionLog) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, entry)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type failingStore struct{ err error }

func (f failingStore) InsertLog(context.Context, *domain.InteractionLog) error { return f.err }
func (f failingStore) ListLogs(context.Context, string) ([]domain.InteractionLog, error) {
	return nil, f.err
}

func validEntry() domain.InteractionLog {
	return domain.InteractionLog{
		SessionID: "sess-1",
		Type:      domain.LogTypeExplanation,
		Prompt:    "{}",
		Response:  "Merhaba",
		FlowID:    "welcoming",
	}
}

func TestRecord_PersistsThenPublishes(t *testing.T) {
	repo := store.NewMemory()
	pub := &recordingPublisher{}
	rec := NewRecorder(repo, pub)

	stored, err := rec.Record(context.Background(), validEntry())
	require.NoError(t, err)
	rec.Close()

	_, parseErr := uuid.Parse(stored.ID)
	assert.NoError(t, parseErr, "id should be a UUID")
	assert.False(t, stored.CreatedAt.IsZero())

	logs, err := repo.ListLogs(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, stored.ID, logs[0].ID)

	require.Equal(t, 1, pub.count())
	assert.Equal(t, stored.ID, pub.published[0].ID)
}

func TestRecord_PublishFailureDoesNotFailRecord(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("subscriber gone")}
	rec := NewRecorder(store.NewMemory(), pub)

	_, err := rec.Record(context.Background(), validEntry())
	assert.NoError(t, err)
	rec.Close()
	assert.Equal(t, 1, pub.count())
}

func TestRecord_DoesNotWaitForPublisher(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	rec := NewRecorder(store.NewMemory(), pub, WithPublishTimeout(5*time.Second))

	done := make(chan error, 1)
	go func() {
		_, err := rec.Record(context.Background(), validEntry())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Record blocked on the publisher")
	}

	close(pub.block)
	rec.Close()
	assert.Equal(t, 1, pub.count())
}

func TestRecord_PublishTimeout(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	rec := NewRecorder(store.NewMemory(), pub, WithPublishTimeout(20*time.Millisecond))

	_, err := rec.Record(context.Background(), validEntry())
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		rec.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("publish did not time out")
	}
	assert.Equal(t, 0, pub.count())
}

func TestRecord_StoreFailureSkipsPublish(t *testing.T) {
	pub := &recordingPublisher{}
	rec := NewRecorder(failingStore{err: errors.New("disk full")}, pub)

	_, err := rec.Record(context.Background(), validEntry())
	require.Error(t, err)
	rec.Close()
	assert.Equal(t, 0, pub.count())
}

func TestRecord_Validation(t *testing.T) {
	rec := NewRecorder(store.NewMemory(), nil)

	tests := []struct {
		name   string
		mutate func(*domain.InteractionLog)
		field  string
	}{
		{"missing session", func(l *domain.InteractionLog) { l.SessionID = "  " }, "sessionId"},
		{"missing type", func(l *domain.InteractionLog) { l.Type = "" }, "type"},
		{"unknown type", func(l *domain.InteractionLog) { l.Type = "chitchat" }, "type"},
		{"missing prompt", func(l *domain.InteractionLog) { l.Prompt = "" }, "prompt"},
		{"missing response", func(l *domain.InteractionLog) { l.Response = "" }, "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := validEntry()
			tt.mutate(&entry)
			_, err := rec.Record(context.Background(), entry)

			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestQuery(t *testing.T) {
	repo := store.NewMemory()
	rec := NewRecorder(repo, nil)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	rec.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, lt := range []domain.LogType{domain.LogTypeExplanation, domain.LogTypeQuestion, domain.LogTypeEvaluation} {
		entry := validEntry()
		entry.Type = lt
		_, err := rec.Record(context.Background(), entry)
		require.NoError(t, err)
	}

	logs, err := rec.Query(context.Background(), " sess-1 ")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, domain.LogTypeExplanation, logs[0].Type)
	assert.Equal(t, domain.LogTypeEvaluation, logs[2].Type)
	assert.True(t, logs[0].CreatedAt.Before(logs[1].CreatedAt))

	_, err = rec.Query(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
