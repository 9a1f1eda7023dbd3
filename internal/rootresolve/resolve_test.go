package rootresolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_ClaudeMarkerWins(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".claude"), 0o755))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got, err := Resolve(context.Background(), sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResolve_BuildManifestFallback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got, err := Resolve(context.Background(), sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestResolve_DistinctProjectsDistinctRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(rootA, ".claude"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(rootB, ".claude"), 0o755))

	gotA, err := Resolve(context.Background(), rootA)
	require.NoError(t, err)
	gotB, err := Resolve(context.Background(), rootB)
	require.NoError(t, err)

	require.NotEqual(t, gotA, gotB)
}

func TestResolve_SameProjectSameRootFromSubdir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".claude"), 0o755))
	sub1 := filepath.Join(root, "x")
	sub2 := filepath.Join(root, "y", "z")
	require.NoError(t, os.MkdirAll(sub1, 0o755))
	require.NoError(t, os.MkdirAll(sub2, 0o755))

	got1, err := Resolve(context.Background(), sub1)
	require.NoError(t, err)
	got2, err := Resolve(context.Background(), sub2)
	require.NoError(t, err)

	require.Equal(t, got1, got2)
}
