package gate_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/gate"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "gate-test.log")
	require.NoError(t, err)

	return testLogger
}

func TestCheckChat_SensitiveWords(t *testing.T) {
	t.Parallel()

	g, err := gate.New(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, g.Words.SetWords([]string{" Violence ", "violence", "", "赌博"}))
	assert.Equal(t, []string{"Violence", "赌博"}, g.Words.Words())

	require.NoError(t, g.CheckChat([]string{"tell me a story"}))

	err = g.CheckChat([]string{"hello", "what is VIOLENCE?"})
	require.ErrorIs(t, err, gate.ErrSensitiveContent)
	require.ErrorIs(t, err, core.ErrAccessDenied)

	err = g.CheckChat([]string{"我想去赌博"})
	require.ErrorIs(t, err, gate.ErrSensitiveContent)

	entries := g.Audit.Entries(0)
	require.Len(t, entries, 2)
	assert.Equal(t, gate.EventChatBlocked, entries[0].Event)
	assert.Equal(t, "赌博", entries[0].Detail)
}

func TestCheckChat_TimeLimit(t *testing.T) {
	t.Parallel()

	g, err := gate.New(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, g.Limits.SetDailyMinutes(5))
	require.NoError(t, g.CheckChat([]string{"hi"}))

	usage, err := g.Heartbeat(3 * time.Minute)
	require.NoError(t, err)
	assert.True(t, usage.Limited)
	assert.InDelta(t, 2.0, usage.RemainingMinutes, 0.001)

	usage, err = g.Heartbeat(3 * time.Minute)
	require.NoError(t, err)
	assert.True(t, usage.Exhausted)
	assert.Zero(t, usage.RemainingMinutes)

	err = g.CheckChat([]string{"hi"})
	require.ErrorIs(t, err, gate.ErrTimeLimitReached)
	require.ErrorIs(t, err, core.ErrAccessDenied)
}

func TestTimeLimiter_Persistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	limitPath := filepath.Join(dir, gate.TimeLimitFile)
	usagePath := filepath.Join(dir, gate.UsageFile)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	limiter, err := gate.NewTimeLimiter(limitPath, usagePath)
	require.NoError(t, err)
	assert.False(t, limiter.Status(now).Limited)

	require.ErrorIs(t, limiter.SetDailyMinutes(-1), gate.ErrNegativeLimit)
	require.NoError(t, limiter.SetDailyMinutes(30))

	_, err = limiter.RecordUsage(now, time.Hour)
	require.NoError(t, err)

	reopened, err := gate.NewTimeLimiter(limitPath, usagePath)
	require.NoError(t, err)

	usage := reopened.Status(now)
	assert.Equal(t, 30, usage.DailyMinutes)
	assert.InDelta(t, 5.0, usage.UsedMinutes, 0.001, "heartbeats are clamped to five minutes")
	assert.Equal(t, "2026-03-14", usage.Date)

	tomorrow := reopened.Status(now.Add(24 * time.Hour))
	assert.Zero(t, tomorrow.UsedMinutes)
}

func TestTimeLimiter_PrunesOldUsage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	usagePath := filepath.Join(dir, gate.UsageFile)
	require.NoError(t, os.WriteFile(usagePath, []byte(`{"2020-01-01": 12.5}`), 0o600))

	limiter, err := gate.NewTimeLimiter(filepath.Join(dir, gate.TimeLimitFile), usagePath)
	require.NoError(t, err)

	_, err = limiter.RecordUsage(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), time.Minute)
	require.NoError(t, err)

	data, err := os.ReadFile(usagePath)
	require.NoError(t, err)

	var stored map[string]float64
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.NotContains(t, stored, "2020-01-01")
	assert.Contains(t, stored, "2026-03-14")
}

func TestAuditLog_Capacity(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), gate.AuditLogFile)

	audit, err := gate.NewAuditLog(path, 3)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, audit.Record(start.Add(time.Duration(i)*time.Second), gate.EventParentLogin, string(rune('a'+i))))
	}

	entries := audit.Entries(0)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Detail)
	assert.Equal(t, "c", entries[2].Detail)
	assert.Len(t, audit.Entries(1), 1)

	reopened, err := gate.NewAuditLog(path, 3)
	require.NoError(t, err)
	assert.Equal(t, entries, reopened.Entries(0))
}

func TestWordFilter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	filter, err := gate.NewWordFilter(filepath.Join(t.TempDir(), gate.SensitiveWordsFile), newTestLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if i%2 == 0 {
				assert.NoError(t, filter.SetWords([]string{"alpha", "beta"}))
			} else {
				filter.Scan("alphabet")
			}
		}()
	}
	wg.Wait()

	word, found := filter.Scan("Alphabet soup")
	assert.True(t, found)
	assert.Equal(t, "alpha", word)
}

func TestWordFilter_WatchReloads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), gate.SensitiveWordsFile)

	filter, err := gate.NewWordFilter(path, newTestLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	watchErr := make(chan error, 1)
	go func() { watchErr <- filter.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	writer, err := gate.NewWordFilter(path, newTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, writer.SetWords([]string{"dragon"}))

	assert.Eventually(t, func() bool {
		_, found := filter.Scan("a dragon appears")

		return found
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-watchErr)
}

func TestSessions(t *testing.T) {
	t.Parallel()

	hash, err := gate.HashPassword("correct horse")
	require.NoError(t, err)

	_, err = gate.NewSessions(hash, nil, time.Hour)
	require.ErrorIs(t, err, gate.ErrMissingSecret)

	sessions, err := gate.NewSessions(hash, []byte("test-secret"), time.Hour)
	require.NoError(t, err)
	assert.True(t, sessions.Enabled())

	_, _, err = sessions.Login("wrong")
	require.ErrorIs(t, err, gate.ErrInvalidPassword)

	token, expires, err := sessions.Login("correct horse")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)
	require.NoError(t, sessions.Verify(token))

	require.ErrorIs(t, sessions.Verify(""), gate.ErrInvalidSession)
	require.ErrorIs(t, sessions.Verify(token+"x"), gate.ErrInvalidSession)

	other, err := gate.NewSessions(hash, []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	require.ErrorIs(t, other.Verify(token), gate.ErrInvalidSession)

	disabled, err := gate.NewSessions("", []byte("test-secret"), 0)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	assert.Equal(t, gate.DefaultSessionTTL, disabled.TTL())

	_, _, err = disabled.Login("anything")
	require.ErrorIs(t, err, gate.ErrParentModeDisabled)
}
