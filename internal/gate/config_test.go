package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/revgate/internal/shellcmd"
)

func TestEnvSnapshot_DotenvUnderProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REVGATE_TEST_FILE_ONLY=1\nREVGATE_TEST_BOTH=file\n"), 0o644))
	t.Setenv("REVGATE_TEST_BOTH", "process")

	env, err := EnvSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "1", env["REVGATE_TEST_FILE_ONLY"])
	assert.Equal(t, "process", env["REVGATE_TEST_BOTH"])
}

func TestEnvSnapshot_MissingDotenv(t *testing.T) {
	t.Setenv("REVGATE_TEST_PRESENT", "yes")
	env, err := EnvSnapshot(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "yes", env["REVGATE_TEST_PRESENT"])
}

func TestConfig_BypassPerAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Env = map[string]string{"SKIP_MERGE_GATE": "true"}

	_, ok := cfg.bypass(shellcmd.ActionPush, nil)
	assert.False(t, ok)
	name, ok := cfg.bypass(shellcmd.ActionPRMerge, nil)
	assert.True(t, ok)
	assert.Equal(t, "SKIP_MERGE_GATE", name)

	_, ok = cfg.bypass(shellcmd.ActionPRMerge, map[string]string{"SKIP_MERGE_GATE": "false"})
	assert.False(t, ok)
}

func TestConfig_Protected(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.protected("main"))
	assert.True(t, cfg.protected("master"))
	assert.False(t, cfg.protected("main-fix"))
}
