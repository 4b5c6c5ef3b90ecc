package hostinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactsReportsLocalHost(t *testing.T) {
	facts, err := Prober{}.Facts(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, facts.Hostname)
	assert.NotEmpty(t, facts.OS)
}
