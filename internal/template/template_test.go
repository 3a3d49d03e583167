package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/blitz/internal/artifact"
	"github.com/felixgeelhaar/blitz/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		prompt     string
		want       Name
		wantReason string
	}{
		{"a todo app in react", React, "explicit"},
		{"a todo app using NODE", Node, "explicit"},
		{"a REST api for books", Node, "keyword:api"},
		{"landing page with authentication", Node, "keyword:authentication"},
		{"a portfolio website", React, "default"},
		{"build me a server-rendered blog react", React, "explicit"},
		{"  a chat app node  ", Node, "explicit"},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			got, reason := Classify(tt.prompt)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestDetectEmptyPrompt(t *testing.T) {
	_, err := Detect("   ")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTemplatePromptRequired))
}

func TestDetectPrompts(t *testing.T) {
	tmpl, err := Detect("a kanban board")
	require.NoError(t, err)

	assert.Equal(t, React, tmpl.Name)
	require.Len(t, tmpl.Prompts, 2)
	assert.Equal(t, BasePrompt, tmpl.Prompts[0])
	assert.Contains(t, tmpl.Prompts[1], reactBasePrompt)
	assert.Contains(t, tmpl.Prompts[1], "package-lock.json")
	require.Len(t, tmpl.UIPrompts, 1)
	assert.Equal(t, tmpl.BaseArtifact, tmpl.UIPrompts[0])
}

func TestScaffoldsParse(t *testing.T) {
	for _, name := range []Name{React, Node} {
		t.Run(string(name), func(t *testing.T) {
			tmpl, err := Get(name)
			require.NoError(t, err)

			res := artifact.Parse(tmpl.BaseArtifact)
			assert.Empty(t, res.Warnings)
			require.NotEmpty(t, res.Steps)
			assert.Equal(t, "package.json", res.Steps[0].Path)
			assert.True(t, strings.HasPrefix(res.Steps[0].Content, "{"))
		})
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := Get("svelte")
	assert.Error(t, err)
}

func TestSystemPromptDescribesGrammar(t *testing.T) {
	p := SystemPrompt()
	for _, tag := range []string{"<boltArtifact", "<boltAction", "<boltActionText>", `type="shell"`} {
		assert.Contains(t, p, tag)
	}
	assert.NotEmpty(t, artifact.Steps(p))
}
