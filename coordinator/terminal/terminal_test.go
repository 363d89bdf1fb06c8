package terminal

import (
	"bytes"
	"testing"

	"github.com/m4xw311/trialdesk/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	cases := []struct {
		input string
		want  bool
		notes string
	}{
		{"y", true, ""},
		{"yes", true, ""},
		{"Yes please proceed", true, "please proceed"},
		{"n", false, ""},
		{"no too risky", false, "too risky"},
		{"", false, ""},
		{"maybe", false, ""},
	}
	for _, c := range cases {
		got, notes := parseDecision(c.input)
		assert.Equal(t, c.want, got, "input %q", c.input)
		assert.Equal(t, c.notes, notes, "input %q", c.input)
	}
}

func TestResolveOption(t *testing.T) {
	options := []string{"Memorial", "County"}
	assert.Equal(t, "Memorial", resolveOption("1", options))
	assert.Equal(t, "County", resolveOption("2", options))
	// Out of range or free text passes through.
	assert.Equal(t, "3", resolveOption("3", options))
	assert.Equal(t, "neither site", resolveOption("neither site", options))
	// No options offered: always free text.
	assert.Equal(t, "1", resolveOption("1", nil))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Assistant", capitalize("assistant"))
	assert.Equal(t, "", capitalize(""))
}

// newTestTerminal builds a terminal over a seeded workspace, writing to
// a buffer instead of stdout. Only commands that never reach the
// coordinator are exercised, so none is bound.
func newTestTerminal(t *testing.T) (*Terminal, *bytes.Buffer) {
	t.Helper()
	workspaces := workspace.NewManager(t.TempDir())
	_, err := workspaces.Create("siv-study")
	require.NoError(t, err)
	_, err = workspaces.WriteDocument("siv-study", "protocol_summary.md", "# Protocol\n")
	require.NoError(t, err)

	term := New(workspaces, "siv-study")
	var out bytes.Buffer
	term.out = &out
	return term, &out
}

func TestStatsCommand(t *testing.T) {
	term, out := newTestTerminal(t)

	assert.True(t, term.handleLine("/stats"))
	assert.Contains(t, out.String(), "1 documents")
	assert.Contains(t, out.String(), "0 drafts")
}

func TestDocsCommand(t *testing.T) {
	term, out := newTestTerminal(t)

	assert.True(t, term.handleLine("/docs"))
	assert.Contains(t, out.String(), "protocol_summary.md")

	// An untouched workspace reports itself empty.
	workspaces := workspace.NewManager(t.TempDir())
	_, err := workspaces.Create("empty-study")
	require.NoError(t, err)
	empty := New(workspaces, "empty-study")
	var emptyOut bytes.Buffer
	empty.out = &emptyOut
	assert.True(t, empty.handleLine("/docs"))
	assert.Contains(t, emptyOut.String(), "empty")
}

func TestQuitCommandEndsLoop(t *testing.T) {
	term, _ := newTestTerminal(t)
	assert.False(t, term.handleLine("/quit"))
	assert.False(t, term.handleLine("/exit"))
	assert.True(t, term.handleLine(""))
}
