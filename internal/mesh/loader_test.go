package mesh

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

func writeMesh(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const basicMesh = `
settings {
  max_parallel      = 2
  cancel_on_failure = true
}

phase "foundation" {}
phase "core" {}

task "print" "announce" {
  phase = "foundation"
  params {
    message = "hello"
    count   = 3
    loud    = true
    tags    = ["a", "b"]
  }
}

task "delay" "warmup" {
  phase      = "core"
  depends_on = ["announce"]
}
`

func TestLoad_SingleFile(t *testing.T) {
	t.Parallel()
	path := writeMesh(t, t.TempDir(), "mesh.hcl", basicMesh)

	m, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Settings.MaxParallel)
	assert.True(t, m.Settings.CancelOnFailure)
	assert.Equal(t, []string{"foundation", "core"}, m.Phases)
	require.Len(t, m.Tasks, 2)

	announce := m.Tasks[0]
	assert.Equal(t, "announce", announce.ID)
	assert.Equal(t, "print", announce.Kind)
	assert.Equal(t, "foundation", announce.Phase)
	assert.Equal(t, "hello", announce.Params["message"])
	assert.Equal(t, float64(3), announce.Params["count"])
	assert.Equal(t, true, announce.Params["loud"])
	assert.Equal(t, []any{"a", "b"}, announce.Params["tags"])

	warmup := m.Tasks[1]
	assert.Equal(t, "warmup", warmup.ID)
	assert.Equal(t, []string{"announce"}, warmup.DependsOn)
	assert.Nil(t, warmup.Params)
}

func TestLoad_DirectoryMergesFilesInSortedOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMesh(t, dir, "01_phases.hcl", `
phase "one" {}
phase "two" {}
`)
	writeMesh(t, dir, "02_tasks.hcl", `
task "print" "a" {
  phase = "one"
}

task "print" "b" {
  phase      = "two"
  depends_on = ["a"]
}
`)

	m, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, m.Phases)
	require.Len(t, m.Tasks, 2)
	assert.Equal(t, "a", m.Tasks[0].ID)
	assert.Equal(t, "b", m.Tasks[1].ID)
}

func TestLoad_DuplicateSettingsBlockRejected(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMesh(t, dir, "a.hcl", `settings { max_parallel = 2 }`)
	writeMesh(t, dir, "b.hcl", `settings { max_parallel = 8 }`)

	_, err := Load(context.Background(), dir)
	assert.ErrorContains(t, err, "duplicate settings block")
}

func TestLoad_MissingPathFails(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
	assert.Error(t, err)
}

func TestLoad_EmptyDirectoryFails(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "no .hcl mesh files")
}

func TestLoad_MalformedFileFails(t *testing.T) {
	t.Parallel()
	path := writeMesh(t, t.TempDir(), "broken.hcl", `task "print" { phase = `)
	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}

func TestApply_RegistersPhasesAndTasks(t *testing.T) {
	t.Parallel()
	path := writeMesh(t, t.TempDir(), "mesh.hcl", basicMesh)
	m, err := Load(context.Background(), path)
	require.NoError(t, err)

	reg := registry.New()
	reg.RegisterHandler("print", func(context.Context, *task.Invocation) (any, error) { return nil, nil })
	reg.RegisterHandler("delay", func(context.Context, *task.Invocation) (any, error) { return nil, nil })

	require.NoError(t, m.Apply(reg))
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"foundation", "core"}, reg.Phases())
}

func TestApply_UnknownKindFails(t *testing.T) {
	t.Parallel()
	path := writeMesh(t, t.TempDir(), "mesh.hcl", `
phase "p" {}

task "ghost" "a" {
  phase = "p"
}
`)
	m, err := Load(context.Background(), path)
	require.NoError(t, err)

	reg := registry.New()
	assert.ErrorContains(t, m.Apply(reg), "ghost")
}
