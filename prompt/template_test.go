package prompt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proofreadYAML = `
system: |
  You are a careful proofreader. Output markdown.
user: |
  Proofread the following text. Keep {{braces}} as they are.

  {text}
meta:
  split: headline
  split_level: 1
  tags: [proofread, en]
`

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("proofread-en.yaml", []byte(proofreadYAML))
	require.NoError(t, err)

	assert.Equal(t, "You are a careful proofreader. Output markdown.\n", tmpl.System)
	mode, ok := tmpl.Meta.Split()
	assert.True(t, ok)
	assert.Equal(t, "headline", mode)
	level, ok := tmpl.Meta.SplitLevel()
	assert.True(t, ok)
	assert.Equal(t, 1, level)
}

func TestParseTemplateMissingKeys(t *testing.T) {
	for name, doc := range map[string]string{
		"no system": "user: '{text}'\nmeta: {}\n",
		"no user":   "system: hi\n",
		"not yaml":  "system: [unclosed\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTemplate("broken.yaml", []byte(doc))
			var loadErr *TemplateLoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, "broken.yaml", loadErr.Path)
		})
	}
}

func TestParseTemplateWithoutMeta(t *testing.T) {
	tmpl, err := ParseTemplate("plain.yaml", []byte("system: s\nuser: u {text}\n"))
	require.NoError(t, err)
	assert.Nil(t, tmpl.Meta)
}

func TestRender(t *testing.T) {
	tmpl, err := ParseTemplate("proofread-en.yaml", []byte(proofreadYAML))
	require.NoError(t, err)

	system, user, err := tmpl.Render("Teh cat {sat}.")
	require.NoError(t, err)
	assert.Equal(t, "You are a careful proofreader. Output markdown.\n", system)
	assert.Equal(t, "Proofread the following text. Keep {braces} as they are.\n\nTeh cat {sat}.\n", user)
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name        string
		user        string
		placeholder string
	}{
		{"undefined placeholder", "Translate to {language}: {text}", "language"},
		{"positional placeholder", "Text: {}", ""},
		{"unclosed brace", "Text: {text", ""},
		{"stray closing brace", "Text: } {text}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &Template{Path: "t.yaml", System: "s", User: tt.user}
			_, _, err := tmpl.Render("x")
			var renderErr *TemplateRenderError
			require.True(t, errors.As(err, &renderErr), "got %v", err)
			assert.Equal(t, "user", renderErr.Field)
			assert.Equal(t, "t.yaml", renderErr.Path)
			if tt.placeholder != "" {
				assert.Equal(t, tt.placeholder, renderErr.Placeholder)
			}
		})
	}
}

func TestMetaSplitLevelSpellings(t *testing.T) {
	level, ok := Meta{"split_headline_level": 3}.SplitLevel()
	assert.True(t, ok)
	assert.Equal(t, 3, level)

	// JSON sidecars decode numbers as float64.
	level, ok = Meta{"split_level": float64(2)}.SplitLevel()
	assert.True(t, ok)
	assert.Equal(t, 2, level)

	_, ok = Meta{"split_level": "two"}.SplitLevel()
	assert.False(t, ok)
}

func TestMetaCloneIsDeep(t *testing.T) {
	orig := Meta{"split": "none", "nested": map[string]any{"k": "v"}, "list": []any{"a"}}
	clone := orig.Clone()

	clone["split"] = "paragraph"
	clone["nested"].(map[string]any)["k"] = "changed"
	clone["list"].([]any)[0] = "b"

	assert.Equal(t, "none", orig["split"])
	assert.Equal(t, "v", orig["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", orig["list"].([]any)[0])
	assert.NotNil(t, Meta(nil).Clone())
}
