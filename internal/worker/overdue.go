package worker

import (
	"context"
	"time"

	"github.com/clinicore/clinic-api/internal/service/billing"
	"github.com/clinicore/clinic-api/pkg/logger"
)

// OverdueBillWorker periodically flips unpaid bills past their due
// date to overdue. Time-based status policy lives here, outside the
// payment reconciler.
type OverdueBillWorker struct {
	billing  *billing.Service
	interval time.Duration
	logger   *logger.Logger
}

func NewOverdueBillWorker(billingSvc *billing.Service, interval time.Duration, l *logger.Logger) *OverdueBillWorker {
	return &OverdueBillWorker{
		billing:  billingSvc,
		interval: interval,
		logger:   l,
	}
}

func (w *OverdueBillWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *OverdueBillWorker) run(ctx context.Context) {
	marked, err := w.billing.MarkOverdue(ctx, time.Now())
	if err != nil {
		w.logger.Error(err, "failed to mark overdue bills")
		return
	}
	if marked > 0 {
		w.logger.Info("marked bills overdue", "count", marked)
	}
}
