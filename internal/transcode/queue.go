// Package transcode serializes long-running video transcode jobs
// behind a single worker. Jobs are appended to an in-process FIFO
// queue; one drainer goroutine runs them to Done or Failed, recording
// every transition in the durable job status store before moving on.
package transcode

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sozialka/social-content-service/internal/config"
	"github.com/sozialka/social-content-service/internal/models"
)

// Job is one unit of transcode work. ID doubles as the media folder id
// and the durable status record id.
type Job struct {
	FilePath     string
	ID           primitive.ObjectID
	OriginalName string
}

// StatusRecorder is the durable job status store the worker writes
// through and callers read from.
type StatusRecorder interface {
	CreateJobStatus(ctx context.Context, status *models.JobStatus) error
	UpdateJobStatus(ctx context.Context, id primitive.ObjectID, state models.JobState, message string) error
	FindJobStatus(ctx context.Context, id primitive.ObjectID) (*models.JobStatus, error)
}

// Queue is the process-local transcode queue plus its single worker.
// Enqueue is safe to call from any number of goroutines; at most one
// drainer ever runs.
type Queue struct {
	encoder Encoder
	upload  Uploader
	status  StatusRecorder
	cfg     config.TranscodeConfig
	prefix  string

	mu       sync.Mutex
	items    []Job
	draining bool
	closed   bool
	wg       sync.WaitGroup
}

// NewQueue creates an idle queue. The worker starts on first Enqueue.
func NewQueue(encoder Encoder, upload Uploader, status StatusRecorder, cfg config.TranscodeConfig, keyPrefix string) *Queue {
	return &Queue{
		encoder: encoder,
		upload:  upload,
		status:  status,
		cfg:     cfg,
		prefix:  keyPrefix,
	}
}

// Enqueue creates the job's Processing status record, appends the job
// to the queue and wakes the worker if it is idle. The status record is
// written first: a job the store has never heard of must not be queued.
// A rejected job never leaves a Processing record behind.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is shut down")
	}
	q.mu.Unlock()

	now := time.Now().UTC()
	err := q.status.CreateJobStatus(ctx, &models.JobStatus{
		ID:        job.ID,
		Name:      job.OriginalName,
		State:     models.JobProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", job.ID.Hex(), err)
	}

	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, job)
		jobsEnqueued.Inc()
		queueDepth.Set(float64(len(q.items)))
		if !q.draining {
			q.draining = true
			q.wg.Add(1)
			go q.drain()
		}
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	// Shutdown raced in between the record write and the append. The
	// job will never run, so the record must not stay Processing.
	if uerr := q.status.UpdateJobStatus(ctx, job.ID, models.JobFailed, "queue is shut down"); uerr != nil {
		log.Printf("failed to fail orphaned job %s: %v", job.ID.Hex(), uerr)
	}
	return fmt.Errorf("queue is shut down")
}

// Status returns the durable status record for a job, or (nil, nil)
// when no such job was ever enqueued.
func (q *Queue) Status(ctx context.Context, id primitive.ObjectID) (*models.JobStatus, error) {
	return q.status.FindJobStatus(ctx, id)
}

// Shutdown stops accepting jobs and waits for the in-flight job to
// finish. Past the deadline the drainer is abandoned; the job it was
// running stays Processing, which the crash model tolerates.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs jobs one at a time until the queue empties or the queue is
// shut down. One job's failure never stops the loop.
func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.closed {
			q.draining = false
			queueDepth.Set(float64(len(q.items)))
			q.mu.Unlock()
			return
		}
		job := q.items[0]
		q.items = q.items[1:]
		queueDepth.Set(float64(len(q.items)))
		q.mu.Unlock()

		q.process(job)
	}
}

// process runs one job to a terminal state and flushes that state to
// the status store before returning.
func (q *Queue) process(job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.EncodeTimeout)
	err := q.run(ctx, job)
	cancel()
	jobDuration.Observe(time.Since(start).Seconds())

	// The job context may be dead by now; the status write gets its own.
	statusCtx, statusCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer statusCancel()

	if err != nil {
		log.Printf("transcode job %s failed: %v", job.ID.Hex(), err)
		jobsCompleted.WithLabelValues("failed").Inc()
		if serr := q.status.UpdateJobStatus(statusCtx, job.ID, models.JobFailed, err.Error()); serr != nil {
			log.Printf("failed to record failure of job %s: %v", job.ID.Hex(), serr)
		}
		return
	}

	log.Printf("transcode job %s done", job.ID.Hex())
	jobsCompleted.WithLabelValues("done").Inc()
	msg := fmt.Sprintf("transcoded %s", job.OriginalName)
	if serr := q.status.UpdateJobStatus(statusCtx, job.ID, models.JobDone, msg); serr != nil {
		log.Printf("failed to record completion of job %s: %v", job.ID.Hex(), serr)
	}
}

// run performs the job's side effects: encode, delete the source,
// upload every produced file, delete the local output folder.
func (q *Queue) run(ctx context.Context, job Job) error {
	outDir := filepath.Join(q.cfg.UploadDir, "videos", job.ID.Hex())

	if err := q.encoder.Encode(ctx, job.FilePath, outDir); err != nil {
		return fmt.Errorf("encode step: %w", err)
	}

	if err := os.Remove(job.FilePath); err != nil {
		return fmt.Errorf("failed to remove source file: %w", err)
	}

	if err := q.uploadDir(ctx, job.ID, outDir); err != nil {
		return err
	}

	if err := os.RemoveAll(outDir); err != nil {
		return fmt.Errorf("failed to remove output folder: %w", err)
	}
	return nil
}

// uploadDir walks the per-job output folder and uploads every file
// under a key reconstructible from the job id and relative path alone.
func (q *Queue) uploadDir(ctx context.Context, jobID primitive.ObjectID, dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", p, err)
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer f.Close()

		key := path.Join(q.prefix, jobID.Hex(), filepath.ToSlash(rel))
		if _, err := q.upload.Put(ctx, key, f, contentType(p)); err != nil {
			return err
		}
		return nil
	})
}

// contentType maps HLS artifacts to their MIME types; anything else
// falls back to the extension table, then octet-stream.
func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".ts":
		return "video/mp2t"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
