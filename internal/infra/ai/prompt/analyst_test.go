package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/ai"
)

func TestParseAdviceVariants(t *testing.T) {
	a, err := ParseAdvice("```json\n{\"priorities\":[\"r-1\"],\"advice\":\"Disable root login.\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-1"}, a.Priorities)
	assert.Equal(t, "Disable root login.\nPriorities: r-1", a.Render())

	a, err = ParseAdvice("Just patch it.")
	require.NoError(t, err)
	assert.Equal(t, "Just patch it.", a.Render())

	_, err = ParseAdvice("   ")
	assert.Error(t, err)
}

func TestUserPromptCarriesDigest(t *testing.T) {
	p := GetUserPrompt(ai.ScanDigest{Hostname: "web-1", Score: 50})
	assert.Contains(t, p, `"hostname":"web-1"`)
}
