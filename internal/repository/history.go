package repository

import (
	"context"
	"time"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// maxStoredError bounds the error text kept per job
const maxStoredError = 2000

// HistoryRecorder turns finished jobs into history records
type HistoryRecorder struct {
	repo JobRepository
}

// NewHistoryRecorder creates a recorder saving into repo
func NewHistoryRecorder(repo JobRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo}
}

// ObserveJob saves the outcome of job
func (h *HistoryRecorder) ObserveJob(ctx context.Context, job domain.Job, res domain.Result, d time.Duration) error {
	msg := res.Error
	if len(msg) > maxStoredError {
		msg = msg[:maxStoredError]
	}
	return h.repo.Save(ctx, domain.JobRecord{
		ID:         job.ID,
		Action:     job.Input.Action,
		Status:     res.Status,
		ErrorType:  string(res.ErrorType),
		Error:      msg,
		DurationMS: d.Milliseconds(),
	})
}
