package telemetry

import (
	"log/slog"
	"time"

	"github.com/steveyackey/devrig/internal/supervisor"
)

// BridgeLogLine maps one supervisor.LogLine into a StoredLog, inserts
// it into store, and echoes it onto events. Severity is derived from
// the supervisor's own keyword-detected level; a stderr line with no
// detected level defaults to Warn rather than Info, since unstructured
// stderr output is far more often a warning than routine chatter.
// There is no trace correlation for process logs.
func BridgeLogLine(store *Store, events *Broadcaster, line supervisor.LogLine) {
	severity := severityFromSlogLevel(line.Level, line.Stderr)
	source := "stdout"
	if line.Stderr {
		source = "stderr"
	}

	stored := store.InsertLog(StoredLog{
		Timestamp:   line.Timestamp,
		ServiceName: line.Service,
		Severity:    severity,
		Body:        line.Text,
		Attributes:  []Attribute{{Key: "log.source", Value: source}},
	})

	events.Publish(TelemetryEvent{
		Type:     EventLogRecord,
		Severity: stored.Severity.String(),
		Body:     stored.Body,
		Service:  stored.ServiceName,
	})
}

func severityFromSlogLevel(level slog.Level, stderr bool) LogSeverity {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarn
	case level >= slog.LevelInfo:
		if stderr {
			return SeverityWarn
		}
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// BridgeContainerLogLine is the docker-container-logs variant of
// BridgeLogLine: same shape, tagged log.source="docker" instead of
// stdout/stderr so dashboard filters can distinguish supervised
// process output from containerized workload output.
func BridgeContainerLogLine(store *Store, events *Broadcaster, service, text string, level slog.Level) {
	stored := store.InsertLog(StoredLog{
		Timestamp:   time.Now(),
		ServiceName: service,
		Severity:    severityFromSlogLevel(level, false),
		Body:        text,
		Attributes:  []Attribute{{Key: "log.source", Value: "docker"}},
	})

	events.Publish(TelemetryEvent{
		Type:     EventLogRecord,
		Severity: stored.Severity.String(),
		Body:     stored.Body,
		Service:  stored.ServiceName,
	})
}
