package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
)

type memRepo struct {
	events []*domain.Event
	err    error
}

func (m *memRepo) SaveEvent(_ context.Context, e *domain.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memRepo) ListEvents(context.Context, string, int) ([]*domain.Event, error) {
	return m.events, nil
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, *domain.Event) error {
	f.calls++
	return errors.New("bus down")
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	repo := &memRepo{}
	pub := &failingPublisher{}
	r := &Recorder{Repo: repo, Publisher: pub, Logger: logging.Discard()}

	r.Record(context.Background(), domain.Event{Action: domain.ActionJobFailed, ResourceType: "scan_job", ResourceID: "j-1"})

	if assert.Len(t, repo.events, 1) {
		assert.NotEmpty(t, repo.events[0].ID)
		assert.False(t, repo.events[0].CreatedAt.IsZero())
	}
	assert.Equal(t, 1, pub.calls)
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	r := &Recorder{Repo: &memRepo{err: errors.New("db gone")}, Logger: logging.Discard()}
	assert.NotPanics(t, func() {
		r.Record(context.Background(), domain.Event{Action: domain.ActionSandboxViolation})
	})

	var nilRecorder *Recorder
	assert.NotPanics(t, func() { nilRecorder.Record(context.Background(), domain.Event{}) })
}
