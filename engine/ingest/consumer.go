package ingest

import (
	"context"
	"log/slog"

	"github.com/docchat-ai/docchat/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject carries ingestion requests from the upload surface.
	IngestSubject = "docs.ingest"
	// DLQSubject receives requests that kept failing.
	DLQSubject = "docs.ingest.dlq"
	// MaxRetries before a request is parked on the DLQ.
	MaxRetries = 3
)

// dlqMessage is published to the DLQ after the final failed attempt.
type dlqMessage struct {
	Request Request `json:"request"`
	Error   string  `json:"error"`
	Retries int     `json:"retries"`
}

// StartConsumer subscribes to IngestSubject and runs each request through the
// ingestion pipeline. Failed requests are re-published with an incremented
// retry count until MaxRetries, then sent to the DLQ.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return natsutil.Subscribe(nc, IngestSubject, func(ctx context.Context, req Request) {
		result := pipeline(ctx, req)
		if result.IsOk() {
			chunks, _ := result.Unwrap()
			log.Info("ingest: request done", "path", req.Path, "collection", req.Collection, "chunks", chunks)
			return
		}

		_, err := result.Unwrap()
		req.Retries++
		log.Error("ingest: request failed", "path", req.Path, "retry", req.Retries, "error", err)

		if req.Retries >= MaxRetries {
			dlq := dlqMessage{Request: req, Error: err.Error(), Retries: req.Retries}
			if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlq); pubErr != nil {
				log.Error("ingest: DLQ publish failed", "error", pubErr)
			}
			return
		}
		if pubErr := natsutil.Publish(ctx, nc, IngestSubject, req); pubErr != nil {
			log.Error("ingest: retry publish failed", "error", pubErr)
		}
	})
}
