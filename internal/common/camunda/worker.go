package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"teed-waitlist/internal/common/logger"
)

// Registration describes one job worker.
type Registration struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
	Handler       worker.JobHandler
}

// Workers owns the opened job workers so they can be closed together.
type Workers struct {
	client  zbc.Client
	workers []worker.JobWorker
	logger  logger.Logger
}

func NewWorkers(client zbc.Client, log logger.Logger) *Workers {
	return &Workers{client: client, logger: log}
}

func (w *Workers) Start(r Registration) {
	if r.MaxJobsActive <= 0 {
		r.MaxJobsActive = 5
	}
	if r.Timeout <= 0 {
		r.Timeout = 30 * time.Second
	}

	jw := w.client.NewJobWorker().
		JobType(r.TaskType).
		Handler(r.Handler).
		MaxJobsActive(r.MaxJobsActive).
		Timeout(r.Timeout).
		Open()
	w.workers = append(w.workers, jw)

	w.logger.Info("worker started", map[string]interface{}{
		"taskType":      r.TaskType,
		"maxJobsActive": r.MaxJobsActive,
		"timeout_ms":    r.Timeout.Milliseconds(),
	})
}

// Stop closes every job worker. Close blocks until in-flight jobs finish.
func (w *Workers) Stop() {
	for _, jw := range w.workers {
		jw.Close()
	}
	w.logger.Info("workers stopped", map[string]interface{}{"count": len(w.workers)})
	w.workers = nil
}
