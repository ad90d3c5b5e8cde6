package workflow

import "github.com/rs/zerolog"

// jobLogger adapts a zerolog.Logger into the LogWriter contract jobs see,
// tagging every entry with deployment and job IDs (spec §4.11).
type jobLogger struct {
	logger zerolog.Logger
}

func newJobLogger(base zerolog.Logger, deploymentID, jobID string) *jobLogger {
	return &jobLogger{logger: base.With().Str("deployment_id", deploymentID).Str("job_id", jobID).Logger()}
}

func (l *jobLogger) Info(msg string, fields map[string]string) {
	event := l.logger.Info()
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg(msg)
}

func (l *jobLogger) Warn(msg string, fields map[string]string) {
	event := l.logger.Warn()
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg(msg)
}

func (l *jobLogger) Error(msg string, fields map[string]string) {
	event := l.logger.Error()
	for k, v := range fields {
		event = event.Str(k, v)
	}
	event.Msg(msg)
}
