// Package archive uploads finished take files from the appliance to S3.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/history"
	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/queue"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/storage"
)

// Worker drains take-archive jobs: stream the file off the appliance,
// upload to S3, record the object key on the take.
type Worker struct {
	recorderBaseURL string
	takes           *history.Repository
	s3              *storage.S3
	queue           *queue.Queue
	http            *http.Client
	logger          *zap.Logger
}

// NewWorker creates an archive worker.
func NewWorker(recorderBaseURL string, takes *history.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		recorderBaseURL: recorderBaseURL,
		takes:           takes,
		s3:              s3,
		queue:           q,
		http:            &http.Client{},
		logger:          logger,
	}
}

// Process executes one archive job.
func (w *Worker) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTakeArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TakeArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	take, err := w.takes.GetByID(ctx, payload.TakeID)
	if err != nil || take == nil {
		return fmt.Errorf("take not found: %s", payload.TakeID)
	}
	if _, done := take.S3Keys[payload.InputID]; done {
		w.logger.Info("take file already archived",
			zap.String("take_id", take.ID.String()),
			zap.String("input_id", payload.InputID),
		)
		return nil
	}

	// The appliance exposes finished files over its control API.
	fileURL := fmt.Sprintf("%s/control/files?path=%s", w.recorderBaseURL, url.QueryEscape(payload.FilePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.TakeKey(take.ID.String(), payload.InputID, payload.FilePath)

	if _, err := w.s3.Upload(ctx, key, contentType, resp.Body, resp.ContentLength); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := w.takes.SetArchivedFile(ctx, take.ID, payload.InputID, key); err != nil {
		return fmt.Errorf("update db: %w", err)
	}

	w.logger.Info("take file archived",
		zap.String("take_id", take.ID.String()),
		zap.String("input_id", payload.InputID),
		zap.String("s3_key", key),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("archive worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.queue.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}

// EnqueueTake queues every output file of a completed take for upload
// and flips the take to archiving.
func EnqueueTake(ctx context.Context, q *queue.Queue, takes *history.Repository, take *models.Take) error {
	if len(take.Files) == 0 {
		return nil
	}
	for inputID, filePath := range take.Files {
		if err := q.EnqueueTakeArchive(ctx, queue.TakeArchivePayload{
			TakeID:   take.ID,
			InputID:  inputID,
			FilePath: filePath,
		}); err != nil {
			return err
		}
	}
	return takes.UpdateStatus(ctx, take.ID, models.TakeStatusArchiving)
}
