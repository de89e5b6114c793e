package zerotrust

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mayanks4367/zero-trust/audit"
	"github.com/mayanks4367/zero-trust/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPIN int32 = 1337

func createTestVault(t *testing.T, ttl time.Duration) *Vault {
	t.Helper()
	options := DefaultOptions()
	options.SessionTTL = ttl
	options.Metrics = metrics.New()

	v, err := New(options, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func readAll(t *testing.T, v *Vault) ([]byte, error) {
	t.Helper()
	var buf bytes.Buffer
	_, _, err := v.ReadAt(context.Background(), &buf, 0, MaxSecretSize)
	return buf.Bytes(), err
}

func TestDefaultLocked(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()

	var buf bytes.Buffer
	_, n, err := v.ReadAt(ctx, &buf, 0, 16)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Zero(t, n)

	_, err = v.Write(ctx, strings.NewReader("secret"), 6)
	assert.ErrorIs(t, err, ErrAccessDenied)

	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Locked, st.State)
	assert.Nil(t, st.Length)
	assert.Nil(t, st.Deadline)
}

func TestUnlockCredentialIsExact(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()

	for _, pin := range []int32{0, 1336, 1338, -1337, 13370} {
		err := v.Unlock(ctx, pin)
		assert.ErrorIs(t, err, ErrInvalidCredential, "pin %d", pin)
		assert.ErrorIs(t, err, ErrDenied, "pin %d", pin)

		st, err := v.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, Locked, st.State, "pin %d must not unlock", pin)
	}

	require.NoError(t, v.Unlock(ctx, testPIN))
	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, st.State)

	// a wrong pin while open does not close the session
	assert.ErrorIs(t, v.Unlock(ctx, 1), ErrDenied)
	st, err = v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, st.State)

	assert.Equal(t, 1.0, testutil.ToFloat64(v.metrics.Unlocks.WithLabelValues("success")))
	assert.Equal(t, 6.0, testutil.ToFloat64(v.metrics.Unlocks.WithLabelValues("denied")))
}

func TestWriteReplacesSecret(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	n, err := v.Write(ctx, strings.NewReader("first-longer-secret"), 19)
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	n, err = v.Write(ctx, strings.NewReader("second"), 6)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	got, err := readAll(t, v)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	st, err := v.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Length)
	assert.Equal(t, 6, *st.Length)
}

func TestWriteTruncatesToCapacity(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	payload := bytes.Repeat([]byte("x"), 5000)
	n, err := v.Write(ctx, bytes.NewReader(payload), len(payload))
	require.NoError(t, err)
	assert.Equal(t, MaxSecretSize, n)

	got, err := readAll(t, v)
	require.NoError(t, err)
	assert.Len(t, got, MaxSecretSize)
}

func TestEmptyWriteClearsSecret(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	_, err := v.Write(ctx, strings.NewReader("abc"), 3)
	require.NoError(t, err)

	n, err := v.Write(ctx, nil, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := readAll(t, v)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadEndOfData(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	secret := "0123456789"
	_, err := v.Write(ctx, strings.NewReader(secret), len(secret))
	require.NoError(t, err)

	var buf bytes.Buffer
	next, n, err := v.ReadAt(ctx, &buf, 0, len(secret))
	require.NoError(t, err)
	assert.Equal(t, len(secret), n)
	assert.Equal(t, int64(len(secret)), next)
	assert.Equal(t, secret, buf.String())

	buf.Reset()
	next, n, err = v.ReadAt(ctx, &buf, next, len(secret))
	require.NoError(t, err, "end-of-data is not an error")
	assert.Zero(t, n)
	assert.Equal(t, int64(len(secret)), next)
	assert.Zero(t, buf.Len())

	// partial reads advance the cursor by what was delivered
	buf.Reset()
	next, n, err = v.ReadAt(ctx, &buf, 4, 100)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int64(10), next)
	assert.Equal(t, "456789", buf.String())
}

func TestReadBoundaries(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	secret := "0123456789"
	_, err := v.Write(ctx, strings.NewReader(secret), len(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		cursor int64
		n      int
		want   string
	}{
		{"huge length from start", 0, math.MaxInt, secret},
		{"huge length mid secret", 1, math.MaxInt, secret[1:]},
		{"huge length at end", int64(len(secret)), math.MaxInt, ""},
		{"huge cursor", math.MaxInt64, math.MaxInt, ""},
		{"past capacity mid secret", 7, MaxSecretSize + 1, secret[7:]},
		{"last byte", 9, 1, "9"},
		{"zero length", 3, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			next, n, err := v.ReadAt(ctx, &buf, tt.cursor, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, len(tt.want), n)
			assert.Equal(t, tt.cursor+int64(n), next)
		})
	}

	// the vault lock is still free after every case
	statusCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	st, err := v.Status(statusCtx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, st.State)
}

type panickingWriter struct{}

func (panickingWriter) Write(p []byte) (int, error) { panic("sink exploded") }

func TestPanicInSinkReleasesLock(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))
	_, err := v.Write(ctx, strings.NewReader("abc"), 3)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _, _ = v.ReadAt(ctx, panickingWriter{}, 0, 3)
	})

	statusCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = v.Status(statusCtx)
	require.NoError(t, err)

	got, err := readAll(t, v)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestReadRejectsNegativeArguments(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	_, _, err := v.ReadAt(ctx, io.Discard, -1, 4)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, _, err = v.ReadAt(ctx, io.Discard, 0, -4)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = v.Write(ctx, strings.NewReader("x"), -1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLockedVaultDeniesBeforeValidating(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()

	_, _, err := v.ReadAt(ctx, io.Discard, -1, 4)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
	_, err = v.Write(ctx, strings.NewReader("x"), -1)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestSessionRefreshSlidesDeadline(t *testing.T) {
	const ttl = 400 * time.Millisecond
	v := createTestVault(t, ttl)
	ctx := context.Background()

	require.NoError(t, v.Unlock(ctx, testPIN))
	first, err := v.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, first.Deadline)

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, v.Unlock(ctx, testPIN))
	second, err := v.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, second.Deadline)
	assert.True(t, second.Deadline.After(*first.Deadline))

	// past the original deadline, still inside the refreshed one
	time.Sleep(250 * time.Millisecond)
	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, st.State, "refreshed session must not lock at the first deadline")

	require.Eventually(t, func() bool {
		st, err := v.Status(ctx)
		return err == nil && st.State == Locked
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(v.metrics.AutoLocks), "refresh replaces, never stacks")
}

func TestTimeoutEnforcement(t *testing.T) {
	v := createTestVault(t, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, v.Unlock(ctx, testPIN))
	_, err := v.Write(ctx, strings.NewReader("top-secret"), 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := v.Status(ctx)
		return err == nil && st.State == Locked
	}, 2*time.Second, 5*time.Millisecond)

	got, err := readAll(t, v)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Empty(t, got, "a denied read must not leak any byte")

	_, err = v.Write(ctx, strings.NewReader("other"), 5)
	assert.ErrorIs(t, err, ErrAccessDenied)

	// locking hides the secret, it does not erase it
	require.NoError(t, v.Unlock(ctx, testPIN))
	got, err = readAll(t, v)
	require.NoError(t, err)
	assert.Equal(t, "top-secret", string(got))
}

func TestInterruptedWaitIsDistinct(t *testing.T) {
	v := createTestVault(t, time.Minute)

	// hold the vault lock so the operations below have to wait
	require.NoError(t, v.sem.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := v.Unlock(ctx, testPIN)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrDenied))

	_, _, err = v.ReadAt(ctx, io.Discard, 0, 1)
	assert.ErrorIs(t, err, ErrInterrupted)
	_, err = v.Write(ctx, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrInterrupted)

	v.sem.Release(1)

	st, err := v.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Locked, st.State, "an interrupted unlock never started")
	assert.Equal(t, 3.0, testutil.ToFloat64(v.metrics.Interrupted))
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, errors.New("bad address")
	}
	n := len(p)
	if n > r.after {
		n = r.after
	}
	for i := 0; i < n; i++ {
		p[i] = 'z'
	}
	r.after -= n
	return n, nil
}

type failingCloseLogger struct {
	audit.NoOpLogger
	err error
}

func (l *failingCloseLogger) Close() error { return l.err }

func TestCloseWrapsCauses(t *testing.T) {
	cause := errors.New("disk gone")
	options := DefaultOptions()
	options.Metrics = metrics.New()
	v, err := New(options, &failingCloseLogger{err: cause})
	require.NoError(t, err)

	err = v.Close()
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, v.Close(), "close is idempotent")
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("bad address") }

func TestWriteTransferFaultLeavesSecret(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))

	_, err := v.Write(ctx, strings.NewReader("keep-me"), 7)
	require.NoError(t, err)

	n, err := v.Write(ctx, &failingReader{after: 3}, 10)
	assert.ErrorIs(t, err, ErrTransferFault)
	assert.Zero(t, n)

	got, err := readAll(t, v)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", string(got))
}

func TestReadTransferFault(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, v.Unlock(ctx, testPIN))
	_, err := v.Write(ctx, strings.NewReader("abc"), 3)
	require.NoError(t, err)

	next, n, err := v.ReadAt(ctx, failingWriter{}, 1, 2)
	assert.ErrorIs(t, err, ErrTransferFault)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), next, "cursor is not advanced on a fault")
}

func TestConcurrentAccessAcrossExpiry(t *testing.T) {
	v := createTestVault(t, 2*time.Millisecond)
	ctx := context.Background()

	secret := bytes.Repeat([]byte("s"), 1024)
	require.NoError(t, v.Unlock(ctx, testPIN))
	_, err := v.Write(ctx, bytes.NewReader(secret), len(secret))
	require.NoError(t, err)

	deadline := time.Now().Add(300 * time.Millisecond)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for time.Now().Before(deadline) {
			_ = v.Unlock(ctx, testPIN)
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				var buf bytes.Buffer
				_, n, err := v.ReadAt(ctx, &buf, 0, len(secret))
				if err != nil {
					assert.ErrorIs(t, err, ErrAccessDenied)
					assert.Zero(t, n)
					assert.Zero(t, buf.Len(), "denied read delivered bytes")
					continue
				}
				assert.Equal(t, len(secret), n, "authorized read must be complete")
				assert.Equal(t, secret, buf.Bytes())
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for time.Now().Before(deadline) {
			n, err := v.Write(ctx, bytes.NewReader(secret), len(secret))
			if err != nil {
				assert.ErrorIs(t, err, ErrAccessDenied)
				continue
			}
			assert.Equal(t, len(secret), n)
		}
	}()

	wg.Wait()
}

func TestCloseCancelsTimerSynchronously(t *testing.T) {
	options := DefaultOptions()
	options.SessionTTL = 30 * time.Millisecond
	options.Metrics = metrics.New()
	v, err := New(options, nil)
	require.NoError(t, err)

	require.NoError(t, v.Unlock(context.Background(), testPIN))
	require.NoError(t, v.Close())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(options.Metrics.AutoLocks), "no expiry after close")

	assert.NoError(t, v.Close(), "close is idempotent")
	assert.ErrorIs(t, v.Unlock(context.Background(), testPIN), ErrClosed)
	_, _, err = v.ReadAt(context.Background(), io.Discard, 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = v.Write(context.Background(), strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = v.Status(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	options := DefaultOptions()
	options.SessionTTL = -time.Second
	_, err := New(options, nil)
	assert.Error(t, err)
}

func TestAuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := audit.NewFileLogger(&audit.Config{
		Enabled: true,
		Type:    audit.FileAuditType,
		Options: map[string]interface{}{"file_path": path},
	})
	require.NoError(t, err)

	options := DefaultOptions()
	options.SessionTTL = time.Minute
	options.Metrics = metrics.New()
	v, err := New(options, logger)
	require.NoError(t, err)

	ctx := context.Background()
	_, _, _ = v.ReadAt(ctx, io.Discard, 0, 1)
	_ = v.Unlock(ctx, 4242)
	require.NoError(t, v.Unlock(ctx, testPIN))
	_, err = v.Write(ctx, strings.NewReader("hunter2"), 7)
	require.NoError(t, err)

	result, err := logger.Query(audit.QueryOptions{})
	require.NoError(t, err)

	actions := map[string]int{}
	for _, e := range result.Events {
		actions[e.Action]++
		assert.NotContains(t, e.Metadata, "pin")
		for _, value := range e.Metadata {
			assert.NotEqual(t, "hunter2", value)
		}
	}
	assert.Equal(t, 1, actions[audit.ActionInitialized])
	assert.Equal(t, 1, actions[audit.ActionUnauthorizedAccess])
	assert.Equal(t, 1, actions[audit.ActionAuthFailure])
	assert.Equal(t, 1, actions[audit.ActionUnlock])
	assert.Equal(t, 1, actions[audit.ActionSecretWrite])

	require.NoError(t, v.Close())
	security, err := logger.Query(audit.QueryOptions{SecurityOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, security.Filtered)
}
