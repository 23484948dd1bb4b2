package rfv

import (
	"context"
	"time"

	"clinicsync/crm"
	"clinicsync/importer"

	"github.com/sirupsen/logrus"
)

// Hook recalculates scores after transaction imports.
type Hook struct {
	source Source
	log    *logrus.Entry
	now    func() time.Time
}

func NewHook(source Source, log *logrus.Entry) *Hook {
	if log == nil {
		log = logrusNop()
	}
	return &Hook{source: source, log: log, now: time.Now}
}

func (h *Hook) Recalculate(ctx context.Context, kind crm.Kind) (importer.RecalcResult, error) {
	started := h.now()
	result, err := Run(ctx, h.source, started, h.log.WithField("kind", kind.String()))
	if err != nil {
		return importer.RecalcResult{}, err
	}
	return importer.RecalcResult{Scored: result.Patients, Duration: h.now().Sub(started)}, nil
}
