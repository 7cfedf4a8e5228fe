package camo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/getmockd/reflector/pkg/prereq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStage(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "blog", "index.html"), "<h1>blog</h1>")
	writeFile(t, filepath.Join(src, "blog", "posts", "index.html"), "posts")
	writeFile(t, filepath.Join(src, "shop", "public", "index.html"), "shop")
	writeFile(t, filepath.Join(src, "broken", "readme.txt"), "no index")
	writeFile(t, filepath.Join(src, "stray.txt"), "ignored")

	work := t.TempDir()
	store, err := Stage(Config{Source: src, WorkDir: work})
	require.NoError(t, err)

	assert.Equal(t, []string{"blog", "shop"}, store.Names())
	assert.Equal(t, filepath.Join(work, "templates"), store.Dir())

	root, err := store.Resolve("blog")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "templates", "blog"), root)

	root, err = store.Resolve("shop")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "templates", "shop", "public"), root)

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "shop", string(data))

	_, err = store.Resolve("broken")
	assert.True(t, prereq.IsMissing(err))
}

func TestStage_Restage(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "blog", "index.html"), "v1")
	work := t.TempDir()

	_, err := Stage(Config{Source: src, WorkDir: work})
	require.NoError(t, err)

	writeFile(t, filepath.Join(src, "blog", "index.html"), "v2")
	store, err := Stage(Config{Source: src, WorkDir: work})
	require.NoError(t, err)

	root, err := store.Resolve("blog")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestStage_MissingSource(t *testing.T) {
	_, err := Stage(Config{Source: filepath.Join(t.TempDir(), "nope"), WorkDir: t.TempDir()})
	assert.True(t, prereq.IsMissing(err))
}
