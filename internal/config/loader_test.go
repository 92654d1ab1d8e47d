package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLoader(path string, env map[string]string) *Loader {
	l := NewLoader(path, zap.NewNop())
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestLoader_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `username: "user@example.com"
password: "secret"
country: "be-nl"
platform_types: ["EOS"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := newTestLoader(path, nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.Username)
	assert.Equal(t, "be-nl", cfg.Country)
	assert.Equal(t, []string{"EOS"}, cfg.PlatformTypes)
	assert.Equal(t, DefaultHTTPPort, cfg.HTTPPort)
	assert.Equal(t, DefaultChannelRefreshSchedule, cfg.ChannelRefreshSchedule)
	assert.Equal(t, "obomsg.prod.be.horizon.tv", cfg.MQTTBroker)
	assert.Equal(t, "https://web-api-prod-obo.horizon.tv/oesp/v4/BE/nld/web", cfg.APIBaseURL)
	assert.Equal(t,
		"https://prod.spark.telenettv.be/nld/web/personalization-service/v1/customer/HH1/devices",
		cfg.PersonalizationURL("HH1"))
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: file\npassword: file\n"), 0644))

	cfg, err := newTestLoader(path, map[string]string{
		"ZIGGO_USERNAME": "env-user",
		"ZIGGO_COUNTRY":  "AT",
		"HTTP_PORT":      "9090",
		"PLATFORM_TYPES": "EOS, EOS2 ,",
		"MQTT_DEBUG":     "true",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, "file", cfg.Password)
	assert.Equal(t, "at", cfg.Country)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, []string{"EOS", "EOS2"}, cfg.PlatformTypes)
	assert.True(t, cfg.MQTTDebug)
}

func TestLoader_MissingFileUsesEnv(t *testing.T) {
	cfg, err := newTestLoader(filepath.Join(t.TempDir(), "absent.yaml"), map[string]string{
		"ZIGGO_USERNAME": "u",
		"ZIGGO_PASSWORD": "p",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultCountry, cfg.Country)
	assert.Equal(t, DefaultPlatformTypes, cfg.PlatformTypes)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing credentials",
			env:  map[string]string{},
			want: "username and password",
		},
		{
			name: "unknown country",
			env:  map[string]string{"ZIGGO_USERNAME": "u", "ZIGGO_PASSWORD": "p", "ZIGGO_COUNTRY": "fr"},
			want: "unsupported country",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader("", tt.env).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: [unterminated"), 0644))

	_, err := newTestLoader(path, nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}
