package api

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// EventPublisher emits best-effort domain events. A publish failure is
// logged and never returned to the HTTP caller, mirroring
// backend/decision's NATSPublisher.
type EventPublisher interface {
	PublishAnalysisCompleted(a *model.Analysis)
	PublishBaselineTrained(pipeline string, runCount int)
}

// NATSPublisher publishes to a real NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher wraps an already-connected nats.Conn.
func NewNATSPublisher(conn *nats.Conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: logger}
}

func (p *NATSPublisher) PublishAnalysisCompleted(a *model.Analysis) {
	p.publish("analysis.completed", map[string]interface{}{
		"pipelineName": a.PipelineName,
		"driftScore":   a.DriftScore,
		"riskLevel":    a.RiskLevel,
		"issueCount":   len(a.Issues),
	})
}

func (p *NATSPublisher) PublishBaselineTrained(pipeline string, runCount int) {
	p.publish("baseline.trained", map[string]interface{}{
		"pipelineName":     pipeline,
		"baselineRunCount": runCount,
	})
}

func (p *NATSPublisher) publish(subject string, payload interface{}) {
	if p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// NoopPublisher discards every event, used when NATS_URL is unset.
type NoopPublisher struct{}

func (NoopPublisher) PublishAnalysisCompleted(*model.Analysis) {}
func (NoopPublisher) PublishBaselineTrained(string, int)       {}
