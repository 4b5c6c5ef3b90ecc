package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
)

type mockConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (m *mockConn) Publish(subject string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.subjects = append(m.subjects, subject)
	m.payloads = append(m.payloads, data)
	return nil
}

func TestPublishUsesActionSubject(t *testing.T) {
	conn := &mockConn{}
	p := NewPublisher(conn, "", nil)

	err := p.Publish(context.Background(), &audit.Event{ID: "e-1", Action: audit.ActionCommandTimeout, ResourceID: "r-1"})
	require.NoError(t, err)
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "pulse.audit.command_timeout", conn.subjects[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "audit.command_timeout", got["event_type"])
}

func TestPublishWrapsConnError(t *testing.T) {
	p := NewPublisher(&mockConn{err: errors.New("closed")}, "x", nil)
	err := p.Publish(context.Background(), &audit.Event{ID: "e-1", Action: audit.ActionJobFailed})
	assert.ErrorContains(t, err, "closed")
}
