package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "logs", "app.log")

	require.NoError(t, Init(Config{Level: "debug", OutputPaths: []string{out}}))
	t.Cleanup(func() { _ = Sync() })

	Named("agent").Debug("交互完成", "thread_id", "0xabc")
	require.NoError(t, Sync())

	content, err := os.ReadFile(out)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry))
	assert.Equal(t, "交互完成", entry["msg"])
	assert.Equal(t, "agent", entry["component"])
	assert.Equal(t, "0xabc", entry["thread_id"])
}

func TestAuditRequiresPath(t *testing.T) {
	err := Init(Config{Audit: AuditConfig{Enabled: true}})
	assert.Error(t, err)
}

func TestAuditUsesSeparateFile(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit", "audit.log")

	require.NoError(t, Init(Config{Audit: AuditConfig{Enabled: true, Path: auditPath}}))
	Audit().Info("wallet_transaction", "hash", "0x01")
	require.NoError(t, Sync())

	content, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "wallet_transaction")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "ERROR", parseLevel("ERROR").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}
