package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/prophecy/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"ruling": "yes"}`,
			want:  `{"ruling": "yes"}`,
		},
		{
			name:  "fenced object",
			input: "```json\n{\"ruling\": \"no\"}\n```",
			want:  `{"ruling": "no"}`,
		},
		{
			name:  "fence without language tag",
			input: "```\n[{\"title\": \"a\"}]\n```",
			want:  `[{"title": "a"}]`,
		},
		{
			name:  "object surrounded by prose",
			input: "Here is my ruling:\n{\"ruling\": \"yes\", \"confidence\": 0.9}\nHope that helps!",
			want:  `{"ruling": "yes", "confidence": 0.9}`,
		},
		{
			name:  "array preferred over enclosing prose",
			input: "Sure! [{\"title\": \"x\"}, {\"title\": \"y\"}] done.",
			want:  `[{"title": "x"}, {"title": "y"}]`,
		},
		{
			name:  "no json at all",
			input: "  I refuse to answer.  ",
			want:  "I refuse to answer.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestExtractJSONRoundTrip(t *testing.T) {
	raw := "```json\n{\"ruling\": \"yes\", \"confidence\": 0.85, \"reasoning\": \"The title says so.\"}\n```"

	var ruling domain.Ruling
	require.NoError(t, json.Unmarshal([]byte(extractJSON(raw)), &ruling))
	assert.Equal(t, domain.SideYes, ruling.Ruling)
	assert.InDelta(t, 0.85, ruling.Confidence, 1e-9)
	assert.NotEmpty(t, ruling.Reasoning)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)

	p, err := New(Config{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultModel, p.model)
	assert.InDelta(t, 0.8, p.temperature, 1e-9)
}
