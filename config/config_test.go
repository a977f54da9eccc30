package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, s string) string {
	pn := filepath.Join(t.TempDir(), "libos.yaml")
	require.Nil(t, os.WriteFile(pn, []byte(s), 0644))
	return pn
}

func TestDefaultValid(t *testing.T) {
	assert.Nil(t, Default().Validate())
}

func TestReadOverrides(t *testing.T) {
	pn := writeFile(t, "max_pid: 64\npid_wrap: 10\nreparent: ancestor\n")
	cfg, err := Read(pn)
	require.Nil(t, err)
	assert.Equal(t, 64, cfg.MaxPid)
	assert.Equal(t, 10, cfg.PidWrap)
	assert.Equal(t, REPARENT_ANCESTOR, cfg.Reparent)
	assert.Equal(t, 1, cfg.InitPid, "default kept")
	assert.Equal(t, 1024, cfg.ReapHistory, "default kept")
}

func TestReadEmpty(t *testing.T) {
	cfg, err := Read(writeFile(t, ""))
	require.Nil(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestReadRejects(t *testing.T) {
	_, err := Read(writeFile(t, "reparent: sibling\n"))
	assert.NotNil(t, err)
	_, err = Read(writeFile(t, "max_pids: 10\n"))
	assert.NotNil(t, err, "unknown key")
	_, err = Read(writeFile(t, "max_pid: 1\n"))
	assert.NotNil(t, err)
	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(CONFIG_ENV, "")
	cfg, err := FromEnv()
	require.Nil(t, err)
	assert.Equal(t, Default(), cfg)

	t.Setenv(CONFIG_ENV, writeFile(t, "max_tasks: 8\n"))
	cfg, err = FromEnv()
	require.Nil(t, err)
	assert.Equal(t, 8, cfg.MaxTasks)
}
