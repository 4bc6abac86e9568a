package notify

import (
	"context"

	"github.com/flowgate/engine/internal/infrastructure/logger"
)

// LoggerObserver writes every event as a structured log line. Grounded on
// the teacher's LoggerObserver: picks Error level when the event carries a
// failure, Info otherwise.
type LoggerObserver struct {
	log *logger.Logger
}

func NewLoggerObserver(log *logger.Logger) *LoggerObserver {
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) Name() string { return "logger" }

func (o *LoggerObserver) OnEvent(ctx context.Context, ev Event) {
	fields := []any{
		"event_type", ev.Type,
		"execution_id", ev.ExecutionID,
	}
	if ev.WorkflowName != "" {
		fields = append(fields, "workflow", ev.WorkflowName)
	}
	if ev.TaskID != "" {
		fields = append(fields, "task_id", ev.TaskID, "task_ref", ev.TaskRef)
	}
	if ev.From != "" || ev.To != "" {
		fields = append(fields, "from", ev.From, "to", ev.To)
	}
	if ev.Status != "" {
		fields = append(fields, "status", ev.Status)
	}
	if ev.DurationMs > 0 {
		fields = append(fields, "duration_ms", ev.DurationMs)
	}
	if ev.Error != "" {
		fields = append(fields, "error", ev.Error)
		o.log.ErrorContext(ctx, "workflow event", fields...)
		return
	}
	o.log.InfoContext(ctx, "workflow event", fields...)
}
