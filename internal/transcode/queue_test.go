package transcode

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/config"
	"github.com/sozialka/social-content-service/internal/models"
)

// fakeEncoder records call order and concurrency, and writes a small
// HLS-shaped output folder unless told to fail for a source path.
type fakeEncoder struct {
	mu        sync.Mutex
	calls     []string
	active    int
	maxActive int
	failFor   map[string]bool
	delay     time.Duration
}

func (e *fakeEncoder) Encode(ctx context.Context, sourcePath, outDir string) error {
	e.mu.Lock()
	e.calls = append(e.calls, sourcePath)
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.failFor[sourcePath] {
		return fmt.Errorf("codec exploded on %s", sourcePath)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{"master.m3u8", "segment000.ts"} {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(name), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// fakeUploader records uploaded keys.
type fakeUploader struct {
	mu   sync.Mutex
	keys []string
}

func (u *fakeUploader) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	return "s3://test-bucket/" + key, nil
}

// memStatus is an in-memory StatusRecorder that keeps the full
// transition history per job.
type memStatus struct {
	mu          sync.Mutex
	records     map[primitive.ObjectID]models.JobStatus
	transitions map[primitive.ObjectID][]models.JobState
}

func newMemStatus() *memStatus {
	return &memStatus{
		records:     make(map[primitive.ObjectID]models.JobStatus),
		transitions: make(map[primitive.ObjectID][]models.JobState),
	}
}

func (s *memStatus) CreateJobStatus(ctx context.Context, status *models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[status.ID] = *status
	s.transitions[status.ID] = append(s.transitions[status.ID], status.State)
	return nil
}

func (s *memStatus) UpdateJobStatus(ctx context.Context, id primitive.ObjectID, state models.JobState, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[id]
	rec.State = state
	rec.Message = message
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	s.transitions[id] = append(s.transitions[id], state)
	return nil
}

func (s *memStatus) FindJobStatus(ctx context.Context, id primitive.ObjectID) (*models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memStatus) state(id primitive.ObjectID) models.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].State
}

func testConfig(t *testing.T) config.TranscodeConfig {
	t.Helper()
	return config.TranscodeConfig{
		UploadDir:     t.TempDir(),
		EncodeTimeout: 5 * time.Second,
	}
}

func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("raw video bytes"), 0o644))
	return path
}

func enqueue(t *testing.T, q *Queue, path, name string) Job {
	t.Helper()
	job := Job{FilePath: path, ID: primitive.NewObjectID(), OriginalName: name}
	require.NoError(t, q.Enqueue(context.Background(), job))
	return job
}

func waitTerminal(t *testing.T, status *memStatus, jobs ...Job) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, job := range jobs {
			if status.state(job.ID) == models.JobProcessing {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueue_ProcessesInOrder(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	encoder := &fakeEncoder{}
	status := newMemStatus()
	q := NewQueue(encoder, &fakeUploader{}, status, cfg, "videos-hls")

	a := enqueue(t, q, writeSource(t, srcDir, "a.mp4"), "a.mp4")
	b := enqueue(t, q, writeSource(t, srcDir, "b.mp4"), "b.mp4")
	c := enqueue(t, q, writeSource(t, srcDir, "c.mp4"), "c.mp4")

	waitTerminal(t, status, a, b, c)

	encoder.mu.Lock()
	defer encoder.mu.Unlock()
	assert.Equal(t, []string{a.FilePath, b.FilePath, c.FilePath}, encoder.calls)
}

func TestQueue_FailureDoesNotPoisonQueue(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	pathB := filepath.Join(srcDir, "b.mp4")
	encoder := &fakeEncoder{failFor: map[string]bool{pathB: true}}
	status := newMemStatus()
	q := NewQueue(encoder, &fakeUploader{}, status, cfg, "videos-hls")

	a := enqueue(t, q, writeSource(t, srcDir, "a.mp4"), "a.mp4")
	b := enqueue(t, q, writeSource(t, srcDir, "b.mp4"), "b.mp4")
	c := enqueue(t, q, writeSource(t, srcDir, "c.mp4"), "c.mp4")

	waitTerminal(t, status, a, b, c)

	assert.Equal(t, models.JobDone, status.state(a.ID))
	assert.Equal(t, models.JobFailed, status.state(b.ID))
	assert.Equal(t, models.JobDone, status.state(c.ID))

	failed, err := q.Status(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.NotEmpty(t, failed.Message)
	assert.Contains(t, failed.Message, "codec exploded")
}

func TestQueue_SingleWorkerInvariant(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	encoder := &fakeEncoder{delay: 5 * time.Millisecond}
	status := newMemStatus()
	q := NewQueue(encoder, &fakeUploader{}, status, cfg, "videos-hls")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		path := writeSource(t, srcDir, fmt.Sprintf("v%d.mp4", i))
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			errs <- q.Enqueue(context.Background(), Job{
				FilePath:     p,
				ID:           primitive.NewObjectID(),
				OriginalName: filepath.Base(p),
			})
		}(path)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		status.mu.Lock()
		defer status.mu.Unlock()
		for _, rec := range status.records {
			if rec.State == models.JobProcessing {
				return false
			}
		}
		return len(status.records) == 8
	}, 5*time.Second, 10*time.Millisecond)

	encoder.mu.Lock()
	defer encoder.mu.Unlock()
	assert.Equal(t, 1, encoder.maxActive, "at most one job may transcode at a time")
	assert.Len(t, encoder.calls, 8)
}

func TestQueue_UploadsAndCleansUp(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	encoder := &fakeEncoder{}
	uploader := &fakeUploader{}
	status := newMemStatus()
	q := NewQueue(encoder, uploader, status, cfg, "videos-hls")

	job := enqueue(t, q, writeSource(t, srcDir, "clip.mp4"), "clip.mp4")
	waitTerminal(t, status, job)

	require.Equal(t, models.JobDone, status.state(job.ID))

	// Keys are reconstructible from the job id and relative path alone.
	uploader.mu.Lock()
	keys := append([]string(nil), uploader.keys...)
	uploader.mu.Unlock()
	assert.Equal(t, []string{
		"videos-hls/" + job.ID.Hex() + "/master.m3u8",
		"videos-hls/" + job.ID.Hex() + "/segment000.ts",
	}, keys)

	// Source file and local output folder are both gone.
	_, err := os.Stat(job.FilePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.UploadDir, "videos", job.ID.Hex()))
	assert.True(t, os.IsNotExist(err))
}

func TestQueue_StatusTransitionsAreMonotonic(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	pathB := filepath.Join(srcDir, "b.mp4")
	encoder := &fakeEncoder{failFor: map[string]bool{pathB: true}}
	status := newMemStatus()
	q := NewQueue(encoder, &fakeUploader{}, status, cfg, "videos-hls")

	a := enqueue(t, q, writeSource(t, srcDir, "a.mp4"), "a.mp4")
	b := enqueue(t, q, writeSource(t, srcDir, "b.mp4"), "b.mp4")

	waitTerminal(t, status, a, b)

	status.mu.Lock()
	defer status.mu.Unlock()
	assert.Equal(t, []models.JobState{models.JobProcessing, models.JobDone}, status.transitions[a.ID])
	assert.Equal(t, []models.JobState{models.JobProcessing, models.JobFailed}, status.transitions[b.ID])
}

func TestQueue_EncodeTimeoutFailsJob(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncodeTimeout = 20 * time.Millisecond
	srcDir := t.TempDir()
	encoder := &fakeEncoder{delay: time.Second}
	status := newMemStatus()
	q := NewQueue(encoder, &fakeUploader{}, status, cfg, "videos-hls")

	job := enqueue(t, q, writeSource(t, srcDir, "slow.mp4"), "slow.mp4")
	waitTerminal(t, status, job)

	assert.Equal(t, models.JobFailed, status.state(job.ID))
}

func TestQueue_ShutdownWaitsForInFlightJob(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	encoder := &fakeEncoder{delay: 50 * time.Millisecond}
	status := newMemStatus()
	q := NewQueue(encoder, &fakeUploader{}, status, cfg, "videos-hls")

	job := enqueue(t, q, writeSource(t, srcDir, "clip.mp4"), "clip.mp4")

	// Wait for the worker to pick the job up so shutdown races against
	// an in-flight job, not a queued one.
	require.Eventually(t, func() bool {
		encoder.mu.Lock()
		defer encoder.mu.Unlock()
		return len(encoder.calls) == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	assert.NotEqual(t, models.JobProcessing, status.state(job.ID))

	err := q.Enqueue(context.Background(), Job{
		FilePath:     writeSource(t, srcDir, "late.mp4"),
		ID:           primitive.NewObjectID(),
		OriginalName: "late.mp4",
	})
	assert.Error(t, err)
}

func TestQueue_RejectedEnqueueLeavesNoProcessingRecord(t *testing.T) {
	cfg := testConfig(t)
	srcDir := t.TempDir()
	status := newMemStatus()
	q := NewQueue(&fakeEncoder{}, &fakeUploader{}, status, cfg, "videos-hls")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	late := Job{
		FilePath:     writeSource(t, srcDir, "late.mp4"),
		ID:           primitive.NewObjectID(),
		OriginalName: "late.mp4",
	}
	require.Error(t, q.Enqueue(context.Background(), late))

	// A job the queue refused must never sit in the status store as
	// Processing with no worker that will ever run it.
	rec, err := status.FindJobStatus(context.Background(), late.ID)
	require.NoError(t, err)
	if rec != nil {
		assert.Equal(t, models.JobFailed, rec.State)
	}
}

func TestQueue_StatusNotFound(t *testing.T) {
	q := NewQueue(&fakeEncoder{}, &fakeUploader{}, newMemStatus(), testConfig(t), "videos-hls")

	got, err := q.Status(context.Background(), primitive.NewObjectID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-mpegURL", contentType("master.m3u8"))
	assert.Equal(t, "video/mp2t", contentType("segment000.ts"))
	assert.Equal(t, "application/octet-stream", contentType("noext"))
}
