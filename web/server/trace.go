package server

import (
	"go.opencensus.io/trace"

	"go.viam.com/spibridge/logging"
)

// loggingSpanExporter logs every finished span at debug level.
type loggingSpanExporter struct {
	logger logging.Logger
}

func newLoggingSpanExporter(logger logging.Logger) *loggingSpanExporter {
	return &loggingSpanExporter{logger: logger}
}

// ExportSpan implements trace.Exporter.
func (e *loggingSpanExporter) ExportSpan(s *trace.SpanData) {
	fields := []interface{}{
		"span", s.Name,
		"duration", s.EndTime.Sub(s.StartTime).String(),
		"status", s.Status.Code,
	}
	for k, v := range s.Attributes {
		fields = append(fields, k, v)
	}
	e.logger.Debugw("span finished", fields...)
}
