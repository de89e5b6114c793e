package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/mayanks4367/zero-trust/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigValue(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
		ok    bool
	}{
		{"vault.pin", 1337, true},
		{"vault.pin", 1 << 40, false},
		{"vault.pin", "abc", false},
		{"vault.session_ttl", "30s", true},
		{"vault.session_ttl", "0s", false},
		{"vault.session_ttl", "soon", false},
		{"vault.memory_lock", true, true},
		{"vault.memory_lock", "maybe", false},
		{"logging.level", "DEBUG", true},
		{"logging.level", "trace", false},
		{"audit.type", "syslog", true},
		{"audit.type", "s3", false},
		{"audit.options.max_age", -1, false},
		{"server.socket", "/run/ztv.sock", true},
	}

	for _, tt := range tests {
		err := validateConfigValue(tt.key, tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s=%v", tt.key, tt.value)
		} else {
			assert.Error(t, err, "%s=%v", tt.key, tt.value)
		}
	}
}

func TestConvertStringValue(t *testing.T) {
	v, err := convertStringValue("true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = convertStringValue("1337")
	require.NoError(t, err)
	assert.Equal(t, 1337, v)

	v, err = convertStringValue("45s")
	require.NoError(t, err)
	assert.Equal(t, "45s", v)

	v, err = convertStringValue("/tmp/vault.sock")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vault.sock", v)
}

func TestSensitiveKeysAreMasked(t *testing.T) {
	assert.True(t, isSensitiveConfigKey("vault.pin"))
	assert.True(t, isSensitiveConfigKey("guard.shared_secret"))
	assert.False(t, isSensitiveConfigKey("guard.keyring.key"))
	assert.False(t, isSensitiveConfigKey("server.socket"))

	config := map[string]interface{}{
		"vault": map[string]interface{}{"pin": 4242, "session_ttl": "30s"},
		"guard": map[string]interface{}{
			"shared_secret": "hunter2",
			"keyring":       map[string]interface{}{"key": "guard-shared-secret"},
		},
	}
	maskSensitiveValues(config)

	vault := config["vault"].(map[string]interface{})
	guardCfg := config["guard"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", vault["pin"])
	assert.Equal(t, "30s", vault["session_ttl"])
	assert.Equal(t, "[REDACTED]", guardCfg["shared_secret"])
	assert.Equal(t, "guard-shared-secret", guardCfg["keyring"].(map[string]interface{})["key"])
}

func TestUnsetNestedKey(t *testing.T) {
	config := map[string]interface{}{
		"vault": map[string]interface{}{"pin": 1, "session_ttl": "30s"},
	}
	require.NoError(t, unsetNestedKey(config, "vault.pin"))
	assert.NotContains(t, config["vault"], "pin")

	assert.Error(t, unsetNestedKey(config, "server.addr"))
}

func TestBuildQueryOptions(t *testing.T) {
	defer func() {
		auditSince, auditSuccessFilter, auditFailuresOnly = "", "", false
	}()

	auditSince = "2026-01-02T15:04:05Z"
	auditSuccessFilter = "true"
	auditFailuresOnly = true

	options, err := buildQueryOptions()
	require.NoError(t, err)
	require.NotNil(t, options.Since)
	assert.Equal(t, 2026, options.Since.Year())
	require.NotNil(t, options.Success)
	assert.False(t, *options.Success, "failures-only wins over --success")

	auditSince = "yesterday"
	_, err = buildQueryOptions()
	assert.Error(t, err)
}

func TestCalculateAuditStats(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []audit.Event{
		{Action: audit.ActionAuthFailure, Success: false, Timestamp: base},
		{Action: audit.ActionUnlock, Success: true, Timestamp: base.Add(time.Second)},
		{Action: audit.ActionSecretWrite, Success: true, Timestamp: base.Add(2 * time.Second)},
		{Action: audit.ActionUnauthorizedAccess, Success: false, Timestamp: base.Add(40 * time.Second)},
		{Action: audit.ActionAutoLock, Success: true, Timestamp: base.Add(31 * time.Second)},
	}

	stats := calculateAuditStats(events)
	assert.Equal(t, 5, stats.TotalEvents)
	assert.Equal(t, 3, stats.SuccessfulEvents)
	assert.Equal(t, 2, stats.FailedEvents)
	assert.InDelta(t, 60.0, stats.SuccessRate, 0.001)
	assert.Equal(t, 1, stats.Unlocks)
	assert.Equal(t, 1, stats.FailedUnlocks)
	assert.Equal(t, 1, stats.DeniedAccess)
	assert.Equal(t, 1, stats.AutoLocks)
	assert.Equal(t, base, *stats.FirstEvent)
	assert.Equal(t, base.Add(40*time.Second), *stats.LastEvent)

	var out bytes.Buffer
	displayAuditStats(&out, stats)
	assert.Contains(t, out.String(), "Failed unlocks")
	assert.Contains(t, out.String(), audit.ActionAutoLock)
}

func TestDisplayAuditEventsEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, displayAuditEvents(&out, nil))
	assert.Equal(t, "No audit events found.\n", out.String())
}
