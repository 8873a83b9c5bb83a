package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStoreCachesByPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix-en.yaml")
	writeFile(t, path, "system: first\nuser: '{text}'\nmeta: {}\n")

	store := NewTemplateStore()
	a, err := store.Load(path)
	require.NoError(t, err)

	writeFile(t, path, "system: second\nuser: '{text}'\nmeta: {}\n")
	b, err := store.Load(path)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, "first", b.System)
	assert.Equal(t, 1, store.Len())
}

func TestStoreLoadMissingFile(t *testing.T) {
	_, err := NewTemplateStore().Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var loadErr *TemplateLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestStoreConcurrentLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix-en.yaml")
	writeFile(t, path, "system: s\nuser: '{text}'\nmeta: {}\n")
	store := NewTemplateStore()

	results := make([]*Template, 16)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			tmpl, err := store.Load(path)
			results[i] = tmpl
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestNewPromptCopiesMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix-en.yaml")
	writeFile(t, path, "system: s\nuser: 'Fix: {text}'\nmeta:\n  split: paragraph\n")
	store := NewTemplateStore()

	p1, err := store.NewPrompt(path, "one")
	require.NoError(t, err)
	p2, err := store.NewPrompt(path, "two")
	require.NoError(t, err)

	p1.Meta["split"] = "none"
	assert.Equal(t, "paragraph", p2.Meta["split"])
	assert.Equal(t, "Fix: two", p2.User)
	assert.False(t, p2.HasOutput())
}
