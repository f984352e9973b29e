package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Reporter sends operator diagnostics to the ops channel. Every report is also
// logged, so a missing or failing channel never loses it.
type Reporter struct {
	ops    Notifier
	logger *zap.Logger
}

func NewReporter(ops Notifier, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{ops: ops, logger: logger}
}

func (r *Reporter) Report(ctx context.Context, kind string, err error) {
	r.logger.Error("Cycle step failed", zap.String("kind", kind), zap.Error(err))
	r.send(ctx, fmt.Sprintf("[%s] %v", kind, err))
}

// Text sends a prepared diagnostic message as is.
func (r *Reporter) Text(ctx context.Context, text string) {
	r.logger.Warn("Operator report", zap.String("text", text))
	r.send(ctx, text)
}

func (r *Reporter) send(ctx context.Context, text string) {
	if r.ops == nil {
		return
	}
	if err := r.ops.Notify(ctx, text); err != nil {
		r.logger.Error("Failed to deliver operator report", zap.Error(err))
	}
}
