package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/trackerimport/internal/domain"
	"example.com/trackerimport/internal/importer"
)

type recordingUpdater struct {
	mu    sync.Mutex
	calls [][]domain.Event
	users []string
	err   error
}

func (u *recordingUpdater) Update(_ context.Context, events []domain.Event, opts importer.ImportOptions) (*importer.ImportSummary, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, events)
	u.users = append(u.users, domain.UsernameOf(opts.User))
	if u.err != nil {
		return nil, u.err
	}
	return &importer.ImportSummary{Status: importer.ImportStatusSuccess, Updated: len(events)}, nil
}

func (u *recordingUpdater) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func job(id string, n int) Job {
	events := make([]domain.Event, n)
	for i := range events {
		events[i] = domain.Event{Event: id, Status: domain.StatusActive}
	}
	return Job{ID: id, Events: events}
}

func TestIngestor_FlushesOnWait(t *testing.T) {
	up := &recordingUpdater{}
	ig := NewIngestor(up, zap.NewNop(), 10, 100, 10*time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ig.Start(ctx)

	admin := Job{ID: "a", Events: []domain.Event{{Event: "evt00000001"}}, Options: importer.ImportOptions{User: &domain.User{Username: "admin"}}}
	require.Equal(t, EnqueueQueued, ig.Enqueue(admin))
	require.Equal(t, EnqueueQueued, ig.Enqueue(job("b", 2)))

	require.Eventually(t, func() bool { return up.callCount() == 2 }, time.Second, 5*time.Millisecond)
	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, []string{"admin", domain.UnknownUsername}, up.users, "each job keeps its own options")
}

func TestIngestor_FlushesOnSize(t *testing.T) {
	up := &recordingUpdater{}
	ig := NewIngestor(up, zap.NewNop(), 10, 3, time.Hour, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ig.Start(ctx)

	require.Equal(t, EnqueueQueued, ig.Enqueue(job("a", 3)))
	require.Eventually(t, func() bool { return up.callCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestIngestor_FlushesOnShutdown(t *testing.T) {
	up := &recordingUpdater{}
	ig := NewIngestor(up, zap.NewNop(), 10, 100, time.Hour, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	ig.Start(ctx)

	require.Equal(t, EnqueueQueued, ig.Enqueue(job("a", 1)))
	cancel()
	ig.Wait()
	assert.Equal(t, 1, up.callCount())
}

func TestIngestor_DrainsQueueOnShutdown(t *testing.T) {
	up := &recordingUpdater{}
	ig := NewIngestor(up, zap.NewNop(), 10, 100, time.Hour, time.Minute)
	for i := range 8 {
		require.Equal(t, EnqueueQueued, ig.Enqueue(job(fmt.Sprintf("j%d", i), 1)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ig.Start(ctx)
	ig.Wait()

	assert.Equal(t, 8, up.callCount(), "every accepted job is processed")
	assert.Empty(t, ig.queue)
}

func TestIngestor_Deduplicates(t *testing.T) {
	ig := NewIngestor(&recordingUpdater{}, zap.NewNop(), 10, 100, time.Hour, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ig.now = func() time.Time { return now }

	assert.Equal(t, EnqueueQueued, ig.Enqueue(job("k1", 1)))
	assert.Equal(t, EnqueueDuplicate, ig.Enqueue(job("k1", 1)))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, EnqueueQueued, ig.Enqueue(job("k1", 1)), "window expired")
}

func TestIngestor_FullQueue(t *testing.T) {
	ig := NewIngestor(&recordingUpdater{}, zap.NewNop(), 1, 100, time.Hour, time.Minute)

	assert.Equal(t, EnqueueQueued, ig.Enqueue(job("a", 1)))
	assert.Equal(t, EnqueueFull, ig.Enqueue(job("b", 1)))
	// a rejected job can be retried once there is room
	<-ig.queue
	assert.Equal(t, EnqueueQueued, ig.Enqueue(job("b", 1)))
}

func TestIngestor_FailedJobCanBeResubmitted(t *testing.T) {
	up := &recordingUpdater{err: errors.New("db down")}
	ig := NewIngestor(up, zap.NewNop(), 10, 1, time.Hour, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ig.Start(ctx)

	require.Equal(t, EnqueueQueued, ig.Enqueue(job("a", 1)))
	require.Eventually(t, func() bool { return up.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return ig.Enqueue(job("a", 1)) == EnqueueQueued }, time.Second, 5*time.Millisecond)
}
