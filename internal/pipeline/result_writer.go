package pipeline

import "vncsentinel/pkg/models"

// ResultWriter writes detection records to a sink.
type ResultWriter interface {
	WriteResults(records []*models.DetectionRecord) error
	Close() error
}
