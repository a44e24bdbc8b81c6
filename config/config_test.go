package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTransport struct {
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffFactor    float64 `mapstructure:"backoff_factor"`
	RetryStatusCodes []int   `mapstructure:"retry_status_codes"`
	UserAgent        string  `mapstructure:"user_agent"`
}

type testSettings struct {
	Transport testTransport `mapstructure:"transport"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "httpreq.yml", `
transport:
  max_retries: 5
  backoff_factor: 0.5
  retry_status_codes: [500, 503]
  user_agent: inventory-sync/2.1
`)

	var cfg testSettings
	require.NoError(t, Load(&cfg, WithConfigFile(path)))

	assert.Equal(t, 5, cfg.Transport.MaxRetries)
	assert.InDelta(t, 0.5, cfg.Transport.BackoffFactor, 1e-9)
	assert.Equal(t, []int{500, 503}, cfg.Transport.RetryStatusCodes)
	assert.Equal(t, "inventory-sync/2.1", cfg.Transport.UserAgent)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "httpreq.yml", "transport:\n  max_retries: 5\n")
	t.Setenv("HTTPREQ_TRANSPORT_MAX_RETRIES", "7")
	t.Setenv("HTTPREQ_TRANSPORT_USER_AGENT", "from-env")

	var cfg testSettings
	require.NoError(t, Load(&cfg, WithConfigFile(path)))

	assert.Equal(t, 7, cfg.Transport.MaxRetries)
	assert.Equal(t, "from-env", cfg.Transport.UserAgent)
}

func TestLoad_CustomPrefix(t *testing.T) {
	t.Setenv("INVSYNC_TRANSPORT_BACKOFF_FACTOR", "1.5")

	var cfg testSettings
	require.NoError(t, Load(&cfg, WithEnvPrefix("INVSYNC"), WithConfigFile("/nonexistent/httpreq.yml")))
	assert.InDelta(t, 1.5, cfg.Transport.BackoffFactor, 1e-9)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	var cfg testSettings
	err := Load(&cfg, WithConfigFile("/nonexistent/path.yml"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Transport.MaxRetries)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "httpreq.yml", "transport: [unclosed\n")

	var cfg testSettings
	err := Load(&cfg, WithConfigFile(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestLoad_EnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "HTTPREQ_TRANSPORT_MAX_RETRIES=9\n")
	t.Cleanup(func() { _ = os.Unsetenv("HTTPREQ_TRANSPORT_MAX_RETRIES") })

	var cfg testSettings
	require.NoError(t, Load(&cfg, WithEnvFile(envPath), WithConfigFile("/nonexistent.yml")))
	assert.Equal(t, 9, cfg.Transport.MaxRetries)
}

type mockFS struct {
	files   map[string]bool
	envLoad []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.envLoad = append(m.envLoad, path)
	return nil
}

func TestLoad_SearchPathsWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"/custom/.env": true}}

	var cfg testSettings
	require.NoError(t, Load(&cfg, WithFileSystem(fs), WithEnvFile("/custom/.env")))
	assert.Equal(t, []string{"/custom/.env"}, fs.envLoad)
}

func TestResolveConfigFile(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"./config/httpreq.yml": true}}
	assert.Equal(t, "./config/httpreq.yml", resolveConfigFile(LoaderConfig{FileSystem: fs}))
	assert.Equal(t, "", resolveConfigFile(LoaderConfig{FileSystem: fs, ConfigFile: "/missing.yml"}))
}

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("TRANSPORT_MAX_RETRIES")
	assert.ElementsMatch(t, []string{
		"transport_max_retries",
		"transport.max.retries",
		"transport.max_retries",
		"transport_max.retries",
	}, got)

	assert.Equal(t, []string{"timeout"}, generateEnvKeyVariants("TIMEOUT"))
}
