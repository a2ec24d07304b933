package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/solatis/displayrules/internal/core/db"
	"github.com/solatis/displayrules/internal/rules"
)

// diagnosticSink counts rule failures of one display and persists them to
// the batch's diagnostics store, when there is one.
type diagnosticSink struct {
	ctx     context.Context
	batch   *batch
	display string
	logger  *zap.Logger
}

func (s *diagnosticSink) RecordRuleError(e *rules.RuleError) {
	s.batch.failed.Add(1)
	if s.batch.store == nil {
		return
	}

	d := db.Diagnostic{
		Display:  s.display,
		WidgetID: e.WidgetID,
		RuleName: e.Rule,
		Property: e.Property,
		Error:    e.Err.Error(),
		Source:   e.Source,
		Partial:  e.Partial,
	}
	// Keep the record even when a sibling display cancelled the batch
	if err := s.batch.store.Record(context.WithoutCancel(s.ctx), s.batch.runID, d); err != nil {
		s.logger.Warn("Failed to record diagnostic",
			zap.String("widget", e.WidgetID),
			zap.String("rule", e.Rule),
			zap.Error(err))
	}
}
