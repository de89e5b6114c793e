package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	logger, err := NewFileLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Source:  "test-host",
		Options: map[string]interface{}{"file_path": path},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func TestFileLoggerLogAndQuery(t *testing.T) {
	logger, _ := newTestFileLogger(t)

	require.NoError(t, logger.Log(ActionUnlock, true, map[string]interface{}{
		"request_id": "req-1",
		"user_id":    "alice",
		"refreshed":  false,
	}))
	require.NoError(t, logger.Log(ActionUnauthorizedAccess, false, map[string]interface{}{
		"operation": "read",
		"error":     "vault is locked: access denied",
	}))
	require.NoError(t, logger.Log(ActionSecretWrite, true, map[string]interface{}{
		"operation": "write",
		"bytes":     12,
	}))

	t.Run("AllEvents", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, result.TotalCount)
		assert.Len(t, result.Events, 3)
	})

	t.Run("WellKnownFieldsAreLifted", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{Action: ActionUnlock})
		require.NoError(t, err)
		require.Len(t, result.Events, 1)

		event := result.Events[0]
		assert.Equal(t, "req-1", event.RequestID)
		assert.Equal(t, "alice", event.UserID)
		assert.Equal(t, "test-host", event.Source)
		assert.NotEmpty(t, event.ID)
		assert.Equal(t, false, event.Metadata["refreshed"])
		assert.NotContains(t, event.Metadata, "request_id")
	})

	t.Run("FailuresOnly", func(t *testing.T) {
		failed := false
		result, err := logger.Query(QueryOptions{Success: &failed})
		require.NoError(t, err)
		require.Len(t, result.Events, 1)
		assert.Equal(t, "read", result.Events[0].Operation)
		assert.Equal(t, "vault is locked: access denied", result.Events[0].Error)
	})

	t.Run("SecurityOnly", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{SecurityOnly: true})
		require.NoError(t, err)
		assert.Len(t, result.Events, 2)
		for _, e := range result.Events {
			assert.True(t, IsSecurityCritical(e.Action), e.Action)
		}
	})

	t.Run("LimitAndOffset", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, result.Events, 2)
		assert.True(t, result.HasMore)

		result, err = logger.Query(QueryOptions{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, result.Events, 1)
		assert.False(t, result.HasMore)
	})

	t.Run("SinceFilter", func(t *testing.T) {
		since := time.Now().Add(-time.Minute)
		result, err := logger.Query(QueryOptions{Since: &since})
		require.NoError(t, err)
		assert.Len(t, result.Events, 3)
	})
}

func TestFileLoggerReopensAfterClose(t *testing.T) {
	logger, path := newTestFileLogger(t)

	require.NoError(t, logger.Log(ActionInitialized, true, nil))
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Log(ActionShutdown, true, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ActionInitialized)
	assert.Contains(t, string(data), ActionShutdown)
}

func TestFileLoggerRotation(t *testing.T) {
	logger, path := newTestFileLogger(t)
	logger.maxBytes = 512
	logger.fileOpts.MaxBackups = 2

	for i := 0; i < 40; i++ {
		require.NoError(t, logger.Log(ActionSecretRead, true, map[string]interface{}{
			"operation": "read",
			"sequence":  i,
		}))
	}

	_, err := os.Stat(path + ".1")
	assert.NoError(t, err, "first backup should exist")
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err, "second backup should exist")
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "backups beyond MaxBackups are removed")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(512))

	result, err := logger.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Less(t, result.TotalCount, 40, "oldest rotated events were pruned")
	assert.Equal(t, fmt.Sprint(39), fmt.Sprint(result.Events[0].Metadata["sequence"]))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	logger, err = NewLogger(&Config{Enabled: true, Type: NoOp})
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	_, err = NewLogger(&Config{Enabled: true, Type: "database"})
	assert.Error(t, err)

	_, err = NewLogger(&Config{Enabled: true, Type: FileAuditType})
	assert.Error(t, err, "file logger requires file_path")
}
