package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tr, err := New(dir, "proj-1")
	require.NoError(t, err)
	tr.Append(Message{Role: "user", Content: "how long is an SIV?"})
	tr.Append(Message{
		Role:    "assistant",
		Content: "Usually one day.",
		Usage:   &Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15},
	})
	require.NoError(t, tr.Save())

	loaded, err := Load(dir, "proj-1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "proj-1", loaded.ProjectID)
	assert.Equal(t, "Usually one day.", loaded.Messages[1].Content)
	require.NotNil(t, loaded.Messages[1].Usage)
	assert.Equal(t, 15, loaded.Messages[1].Usage.TotalTokens)

	// A loaded transcript can be saved again.
	loaded.Append(Message{Role: "user", Content: "thanks"})
	require.NoError(t, loaded.Save())
}

func TestLoadMissingTranscriptStartsEmpty(t *testing.T) {
	tr, err := Load(t.TempDir(), "brand-new")
	require.NoError(t, err)
	assert.Empty(t, tr.Messages)
	assert.Equal(t, "brand-new", tr.ProjectID)
}

func TestUsageAdd(t *testing.T) {
	var total Usage
	total.Add(&Usage{PromptTokens: 3, ResponseTokens: 4, TotalTokens: 7})
	total.Add(nil)
	total.Add(&Usage{PromptTokens: 1, ResponseTokens: 1, TotalTokens: 2})
	assert.Equal(t, Usage{PromptTokens: 4, ResponseTokens: 5, TotalTokens: 9}, total)
}
