package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database_url: postgres://alumni@localhost/alumni?sslmode=disable
jwt_secret: jwt
invite:
  token_secret: tok
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://alumni@localhost/alumni?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, 72*time.Hour, cfg.Invite.TTL)
	assert.Equal(t, 2, cfg.Invite.BatchSize)
	assert.Equal(t, time.Second, cfg.Invite.BatchDelay)
	assert.Contains(t, cfg.Invite.ClaimURLTemplate, "token=%s")
	assert.Equal(t, "attendance_changes", cfg.Realtime.Channel)
	assert.Equal(t, 10.0, cfg.Invite.ClaimRate)
	assert.Equal(t, 20, cfg.Invite.ClaimBurst)
}

func TestLoadFromReadsNestedValues(t *testing.T) {
	path := writeConfig(t, `
jwt_secret: jwt
server_port: "9090"
log_file: /var/log/alumni/server.log
email:
  from: events@alumni.org
  smtp_host: smtp.alumni.org
  smtp_port: 2525
invite:
  token_secret: tok
  ttl: 24h
  batch_size: 5
  batch_delay: 250ms
realtime:
  channel: rsvp
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "/var/log/alumni/server.log", cfg.LogFile)
	assert.Equal(t, "events@alumni.org", cfg.Email.From)
	assert.Equal(t, "smtp.alumni.org", cfg.Email.SMTPHost)
	assert.Equal(t, 2525, cfg.Email.SMTPPort)
	assert.Equal(t, 24*time.Hour, cfg.Invite.TTL)
	assert.Equal(t, 5, cfg.Invite.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Invite.BatchDelay)
	assert.Equal(t, "rsvp", cfg.Realtime.Channel)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
jwt_secret: from-file
invite:
  token_secret: tok
`)
	t.Setenv("ALUMNI_JWT_SECRET", "from-env")
	t.Setenv("ALUMNI_INVITE_BATCH_SIZE", "7")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 7, cfg.Invite.BatchSize)
}

func TestSecretsAreRequired(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "invite:\n  token_secret: tok\n"))
	assert.EqualError(t, err, "jwt_secret must be set")

	_, err = LoadFrom(writeConfig(t, "jwt_secret: jwt\n"))
	assert.EqualError(t, err, "invite.token_secret must be set")
}

func TestLoadFromRejectsBrokenFile(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "jwt_secret: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}
