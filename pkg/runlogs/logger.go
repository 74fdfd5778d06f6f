package runlogs

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/comicseed/pkg/models"
)

const maxDataValueLen = 1024

// RunLogger writes to the process logger and keeps warn and error lines in
// run_logs so a finished run can be inspected later.
type RunLogger struct {
	runID   int
	service *Service
	log     logger.Logger
	ctx     context.Context
}

func (svc *Service) NewRunLogger(ctx context.Context, runID int, log logger.Logger) *RunLogger {
	return &RunLogger{
		runID:   runID,
		service: svc,
		log:     log.Data(logger.Data{"run_id": runID}),
		ctx:     ctx,
	}
}

// Info is not persisted.
func (l *RunLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
}

func (l *RunLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.persist(models.RunLogLevelWarn, msg, data)
}

// Error logs and persists an error line. err may be nil.
func (l *RunLogger) Error(msg string, err error, data logger.Data) {
	log := l.log
	if err != nil {
		log = log.Err(err)
	}
	log.Error(msg, data)
	if data == nil {
		data = logger.Data{}
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.persist(models.RunLogLevelError, msg, data)
}

func (l *RunLogger) persist(level, msg string, data logger.Data) {
	var label *string
	if ls, ok := data["label"].(string); ok && ls != "" {
		label = &ls
	}

	var dataStr *string
	if len(data) > 0 {
		truncated := make(logger.Data, len(data))
		for k, v := range data {
			if k == "label" {
				continue
			}
			if s, ok := v.(string); ok && len(s) > maxDataValueLen {
				truncated[k] = truncateMiddle(s, maxDataValueLen)
			} else {
				truncated[k] = v
			}
		}
		if len(truncated) > 0 {
			if b, err := json.Marshal(truncated); err == nil {
				s := string(b)
				dataStr = &s
			}
		}
	}

	err := l.service.CreateRunLog(l.ctx, &models.RunLog{
		RunID:   l.runID,
		Level:   level,
		Message: msg,
		Label:   label,
		Data:    dataStr,
	})
	if err != nil {
		l.log.Err(err).Warn("failed to persist run log")
	}
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
