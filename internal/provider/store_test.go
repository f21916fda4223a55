package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/worker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New()
	s, err := Open(filepath.Join(dir, "zeusgate.db"), filepath.Join(dir, "prompts"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetReturnsZeroValueWhenUnset(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.Provider)
	assert.Empty(t, cfg.SystemPrompt)
}

func TestUpdatePersistsAndReturnsAffectedWorkers(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	reg.Upsert(worker.Worker{ID: "w1", Provider: "claude", Status: worker.StatusRunning, Health: worker.HealthHealthy}, worker.EventStarted)
	s, err := Open(filepath.Join(dir, "zeusgate.db"), filepath.Join(dir, "prompts"), reg)
	require.NoError(t, err)
	defer s.Close()

	prompt := "be concise"
	affected, err := s.Update("claude", Patch{SystemPrompt: &prompt})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, affected)

	cfg, err := s.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, prompt, cfg.SystemPrompt)

	data, err := os.ReadFile(filepath.Join(dir, "prompts", "claude", "system-prompt.txt"))
	require.NoError(t, err)
	assert.Equal(t, prompt, string(data))
}

func TestUpdateWithoutPromptChangeSkipsFileRewrite(t *testing.T) {
	s := newTestStore(t)
	model := "claude-3"
	_, err := s.Update("claude", Patch{DefaultModel: &model})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(s.promptsDir, "claude", "system-prompt.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureMaterializedWritesCurrentPrompt(t *testing.T) {
	s := newTestStore(t)
	prompt := "hello"
	_, err := s.Update("codex", Patch{SystemPrompt: &prompt})
	require.NoError(t, err)

	require.NoError(t, s.EnsureMaterialized(nil, "codex"))
	data, err := os.ReadFile(filepath.Join(s.promptsDir, "codex", "system-prompt.txt"))
	require.NoError(t, err)
	assert.Equal(t, prompt, string(data))
}
