package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/lvs-console/internal/backend"
	"github.com/raaihank/lvs-console/internal/logger"
	"github.com/raaihank/lvs-console/internal/logparse"
	"github.com/raaihank/lvs-console/internal/store"
)

// runRecord is the history entry of one run
type runRecord struct {
	store.Run
}

func newRunRecord(req backend.RunRequest) *runRecord {
	return &runRecord{Run: store.Run{
		RunID:   uuid.NewString(),
		Layout:  req.Layout,
		Netlist: req.Netlist,
		Cells:   append([]string(nil), req.SelectedCells...),
		Checks:  append([]bool(nil), req.Checks...),
	}}
}

func (r *runRecord) fail(err error) {
	r.Status = store.StatusFailed
	r.Error = err.Error()
}

func (r *runRecord) succeed(report *backend.Report, violations int) {
	r.Status = store.StatusSucceeded
	r.ReportName = report.Filename
	r.ReportSize = int64(len(report.Body))
	r.Violations = int64(violations)
}

// recordRun saves the run and its rule counts. History is best effort: a
// failing store never fails the run itself.
func (s *Server) recordRun(ctx context.Context, log *logger.Logger, rec *runRecord, rows []logparse.RuleCount) {
	if s.store == nil {
		return
	}

	// recorded even if the client has gone away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.store.RecordRun(ctx, &rec.Run); err != nil {
		log.Warn("Failed to record run", zap.Error(err))
		return
	}
	if err := s.store.RecordRuleCounts(ctx, rec.ID, rows); err != nil {
		log.Warn("Failed to record rule counts", zap.Error(err), zap.Int64("run", rec.ID))
	}
}
