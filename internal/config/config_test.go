package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ".gate", cfg.GateDir)
	assert.Equal(t, "gate_request.md", cfg.Mailbox.RequestFile)
	assert.Equal(t, "gate_response.json", cfg.Mailbox.ResponseFile)
	assert.Equal(t, 50, cfg.Alignment.HistorySize)
	assert.Equal(t, "127.0.0.1:8765", cfg.Approval.PreferredAddr)
	assert.Equal(t, 300*time.Second, cfg.GetApprovalTimeout())
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GATE_DIR", "")
	t.Setenv("GATE_APPROVAL_ADDR", "")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Approval.Timeout = "45s"
	cfg.Alignment.HistoryDB = "alignment_history.db"
	cfg.Logging.Categories = map[string]bool{"approval": false}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, loaded.GetApprovalTimeout())
	assert.Equal(t, "alignment_history.db", loaded.Alignment.HistoryDB)
	assert.False(t, loaded.Logging.Categories["approval"])
}

func TestConfig_LoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Mailbox, cfg.Mailbox)
}

func TestConfig_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gate_dir: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultConfig()
	ws := filepath.Join("/work", "project")

	assert.Equal(t, filepath.Join(ws, ".gate"), cfg.Dir(ws))
	assert.Equal(t, filepath.Join(ws, ".gate", "gate_request.md"), cfg.Path(ws, cfg.Mailbox.RequestFile))
	assert.Equal(t, "/abs/ledger.json", cfg.Path(ws, "/abs/ledger.json"))
	assert.Equal(t, "", cfg.Path(ws, ""))

	cfg.GateDir = "/var/gate"
	assert.Equal(t, "/var/gate", cfg.Dir(ws))
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval.Timeout = "soon"
	cfg.Approval.ShutdownGrace = "-1s"
	cfg.Mailbox.WaitRecheck = ""

	assert.Equal(t, 300*time.Second, cfg.GetApprovalTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetShutdownGrace())
	assert.Equal(t, 2*time.Second, cfg.GetWaitRecheck())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty gate dir", func(c *Config) { c.GateDir = "" }},
		{"same mailbox files", func(c *Config) { c.Mailbox.ResponseFile = c.Mailbox.RequestFile }},
		{"missing ledger", func(c *Config) { c.Ledger.File = "" }},
		{"zero history", func(c *Config) { c.Alignment.HistorySize = 0 }},
		{"bad addr", func(c *Config) { c.Approval.PreferredAddr = "8765" }},
		{"non-loopback addr", func(c *Config) { c.Approval.PreferredAddr = "0.0.0.0:8765" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Approval.PreferredAddr = "localhost:9000"
	assert.NoError(t, cfg.Validate())
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.False(t, lc.IsCategoryEnabled("mailbox"))

	lc.DebugMode = true
	assert.True(t, lc.IsCategoryEnabled("mailbox"))

	lc.Categories = map[string]bool{"mailbox": false}
	assert.False(t, lc.IsCategoryEnabled("mailbox"))
	assert.True(t, lc.IsCategoryEnabled("ledger"))
}
