package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/ai"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior infrastructure hardening analyst reviewing a host compliance scan. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- priorities lists at most five failed rule ids, most urgent first.
- advice is plain prose of at most six sentences aimed at the host operator.
- Do not invent checks that are not in the input.

Schema (example with empty values):
{
  "priorities": ["<rule id>"],
  "advice": "<string>"
}`
}

// GetUserPrompt embeds the scan digest as JSON.
func GetUserPrompt(d ai.ScanDigest) string {
	payload, err := json.Marshal(d)
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf("Review this compliance scan and respond with the JSON per schema.\nScan: %s", payload)
}

// Advice matches the schema used by the system prompt.
type Advice struct {
	Priorities []string `json:"priorities"`
	Advice     string   `json:"advice"`
}

// ParseAdvice extracts the advice text. Models occasionally wrap JSON in
// fences or answer in prose; prose is returned as is.
func ParseAdvice(raw string) (Advice, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return Advice{}, fmt.Errorf("empty model response")
	}
	if !strings.HasPrefix(s, "{") {
		return Advice{Advice: s}, nil
	}
	var a Advice
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Advice{}, fmt.Errorf("decode advice: %w", err)
	}
	return a, nil
}

// Render formats advice for storage on the scan.
func (a Advice) Render() string {
	text := strings.TrimSpace(a.Advice)
	if len(a.Priorities) == 0 {
		return text
	}
	return fmt.Sprintf("%s\nPriorities: %s", text, strings.Join(a.Priorities, ", "))
}
