package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/messaging"
	"github.com/pagemill/crawl-ingest-service/common/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunService struct {
	mu       sync.Mutex
	statuses map[string]models.RunStatus
}

func newFakeRunService() *fakeRunService {
	return &fakeRunService{statuses: make(map[string]models.RunStatus)}
}

func (f *fakeRunService) Create(_ context.Context, runGUID string) (models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[runGUID] = models.RunStatusStarting
	return models.Run{RunGUID: runGUID, Status: models.RunStatusStarting, CreatedAt: time.Now()}, nil
}

func (f *fakeRunService) LatestGUID(context.Context) (string, error) { return "", nil }

func (f *fakeRunService) SetStatus(_ context.Context, runGUID string, status models.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[runGUID] = status
	return nil
}

func (f *fakeRunService) ResetPipelineData(context.Context) error { return nil }

func (f *fakeRunService) status(runGUID string) models.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[runGUID]
}

// fakeJobService scripts pending batches and active counts per call.
type fakeJobService struct {
	mu            sync.Mutex
	pendingCalls  int
	pending       [][]models.Job
	activeCalls   int
	activeCounts  []int64
	published     [][]int64
	seeded        int64
	pendingErr    error
	activeErr     error
	publishedErr  error
	inserted      []models.NewJob
	completedIDs  []int64
	failed        map[int64]string
	claimOutcomes map[int64]bool
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{failed: make(map[int64]string), claimOutcomes: make(map[int64]bool)}
}

func (f *fakeJobService) PendingBatch(_ context.Context, _ string, _ int) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	if f.pendingCalls >= len(f.pending) {
		return nil, nil
	}
	batch := f.pending[f.pendingCalls]
	f.pendingCalls++
	return batch, nil
}

func (f *fakeJobService) MarkPublished(_ context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishedErr != nil {
		return 0, f.publishedErr
	}
	f.published = append(f.published, ids)
	return int64(len(ids)), nil
}

func (f *fakeJobService) Claim(_ context.Context, id int64, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, known := f.claimOutcomes[id]
	return ok || !known, nil
}

func (f *fakeJobService) Complete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedIDs = append(f.completedIDs, id)
	return nil
}

func (f *fakeJobService) Fail(_ context.Context, id int64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = msg
	return nil
}

func (f *fakeJobService) InsertBatch(_ context.Context, jobs []models.NewJob) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, jobs...)
	return int64(len(jobs)), nil
}

func (f *fakeJobService) SeedFromPages(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeded, nil
}

func (f *fakeJobService) CountActive(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeErr != nil {
		return 0, f.activeErr
	}
	if f.activeCalls >= len(f.activeCounts) {
		f.activeCalls++
		return 0, nil
	}
	count := f.activeCounts[f.activeCalls]
	f.activeCalls++
	return count, nil
}

func (f *fakeJobService) activeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeCalls
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []messaging.JobMessage
	err      error
}

func (f *fakeBroker) PublishSync(_ context.Context, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var msg messaging.JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func fastCrawlConfig() config.CrawlConfig {
	cfg := config.DefaultConfig().Crawl
	cfg.BatchSize = 100
	cfg.QuiescenceChecks = 3
	cfg.QuiescenceSleep = time.Millisecond
	cfg.MainLoopSleep = time.Millisecond
	return cfg
}

func pendingJob(id int64, url string) models.Job {
	return models.Job{ID: id, RunGUID: "run-1", URL: url, Status: models.JobStatusPending, CheckHash: true}
}

func TestQueueManagerPublishesThenCompletes(t *testing.T) {
	jobs := newFakeJobService()
	jobs.pending = [][]models.Job{
		{pendingJob(1, "https://example.com/a"), pendingJob(2, "https://example.com/b")},
	}
	// All quiescence polls read zero after the batch drains.
	jobs.activeCounts = []int64{0, 0, 0}

	runs := newFakeRunService()
	broker := &fakeBroker{}
	m := NewQueueManager(runs, jobs, broker, fastCrawlConfig())

	err := m.Run(context.Background(), "run-1")
	require.NoError(t, err)

	require.Len(t, jobs.published, 1)
	assert.Equal(t, []int64{1, 2}, jobs.published[0])

	require.Len(t, broker.messages, 2)
	assert.Equal(t, int64(1), broker.messages[0].JobID)
	assert.Equal(t, "https://example.com/a", broker.messages[0].URL)
	assert.Equal(t, "run-1", broker.messages[0].RunGUID)
	assert.True(t, broker.messages[0].CheckHash)

	assert.Equal(t, models.RunStatusComplete, runs.status("run-1"))
	assert.Equal(t, 3, jobs.activeCallCount())
}

func TestQueueManagerQuiescenceShortCircuit(t *testing.T) {
	jobs := newFakeJobService()
	// First cycle: nothing pending, one job still active on the first
	// poll. Second cycle: fully quiescent.
	jobs.activeCounts = []int64{1, 0, 0, 0}

	runs := newFakeRunService()
	m := NewQueueManager(runs, jobs, &fakeBroker{}, fastCrawlConfig())

	err := m.Run(context.Background(), "run-1")
	require.NoError(t, err)

	// 1 short-circuited poll + 3 clean polls, never more.
	assert.Equal(t, 4, jobs.activeCallCount())
	assert.Equal(t, models.RunStatusComplete, runs.status("run-1"))
}

func TestQueueManagerRepositoryErrorIsFatal(t *testing.T) {
	jobs := newFakeJobService()
	jobs.pendingErr = errors.New("connection refused")

	runs := newFakeRunService()
	m := NewQueueManager(runs, jobs, &fakeBroker{}, fastCrawlConfig())

	err := m.Run(context.Background(), "run-1")
	require.Error(t, err)
	assert.NotEqual(t, models.RunStatusComplete, runs.status("run-1"))
}

func TestQueueManagerPublishErrorIsFatal(t *testing.T) {
	jobs := newFakeJobService()
	jobs.pending = [][]models.Job{{pendingJob(1, "https://example.com/a")}}

	m := NewQueueManager(newFakeRunService(), jobs, &fakeBroker{err: errors.New("nats down")}, fastCrawlConfig())

	err := m.Run(context.Background(), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing job")
}

func TestQueueManagerHonorsCancellation(t *testing.T) {
	jobs := newFakeJobService()
	jobs.activeCounts = []int64{1, 1, 1, 1, 1, 1}

	cfg := fastCrawlConfig()
	cfg.MainLoopSleep = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	m := NewQueueManager(newFakeRunService(), jobs, &fakeBroker{}, cfg)
	err := m.Run(ctx, "run-1")
	require.ErrorIs(t, err, context.Canceled)
}
