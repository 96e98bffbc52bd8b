package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("WORKER_MAX_ATTEMPTS", "")
	t.Setenv("WORKER_RETRY_DELAY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Worker.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Worker.HardDeadline)
	assert.Equal(t, 25*time.Second, cfg.Worker.SoftDeadline)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, QueueBackendRedis, cfg.Queue.Backend)
	assert.True(t, cfg.Worker.Embedded)
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("WORKER_RETRY_DELAY", "15")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Worker.RetryDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
}

func TestValidateRejectsInconsistentDeadlines(t *testing.T) {
	t.Setenv("WORKER_SOFT_DEADLINE", "40s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_SOFT_DEADLINE")
}

func TestValidateRejectsShortLease(t *testing.T) {
	t.Setenv("WORKER_LEASE_TIMEOUT", "20s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_LEASE_TIMEOUT")
}

func TestValidateMemoryQueueNeedsEmbeddedWorker(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("WORKER_EMBEDDED", "false")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_BACKEND=memory")
}

func TestValidateSplitDeploymentNeedsPostgres(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("WORKER_EMBEDDED", "false")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}
