package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeTempConfig(t, `{
		"platform": {"id": "edge-1"},
		"log": {"level": "info"},
		"gateways": {"nats": {"url": "nats://localhost:4222"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "edge-1", cfg.Platform.ID)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingPlatformID(t *testing.T) {
	path := writeTempConfig(t, `{"log": {"level": "info"}}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

type natsGatewayConfig struct {
	URL string `json:"url"`
}

func TestGatewayConfig(t *testing.T) {
	cfg := &Config{Gateways: map[string]json.RawMessage{
		"nats": json.RawMessage(`{"url": "nats://localhost:4222"}`),
	}}

	var gc natsGatewayConfig
	require.NoError(t, GatewayConfig(cfg, "nats", &gc))
	assert.Equal(t, "nats://localhost:4222", gc.URL)

	assert.Error(t, GatewayConfig(cfg, "missing", &gc))
}
