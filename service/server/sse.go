package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/sfviz/service/metrics"
	natspkg "github.com/brojonat/sfviz/service/nats"
)

const (
	sseKeepaliveInterval = 10 * time.Second
	sseAllWatches        = "all"
)

// SSEPublisher relays snapshot events from JetStream to Server-Sent Events
// clients. Each connection gets its own ephemeral consumer.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher connects to NATS and makes sure the snapshot stream exists,
// so clients can subscribe before the first worker publishes.
func NewSSEPublisher(ctx context.Context, natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, js, err := natspkg.Connect(natsURL, "sfviz-sse-publisher")
	if err != nil {
		return nil, err
	}

	if err := natspkg.EnsureStream(ctx, js, logger); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamSnapshots streams snapshot events. Without an {id} path value
// it streams every watch.
// GET /api/v1/stream/snapshots/{id}
// GET /api/v1/stream/snapshots
func handleStreamSnapshots(publisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := natspkg.StreamSubjects
		watchDesc := sseAllWatches
		if raw := r.PathValue("id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, "invalid watch id", http.StatusBadRequest)
				return
			}
			subject = natspkg.Subject(id.String())
			watchDesc = id.String()
		}

		ctx := r.Context()

		// streams outlive the server's write timeout
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			logger.DebugContext(ctx, "unable to clear write deadline", "error", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flush(w)

		if m != nil {
			m.RecordSSEConnectionChange(watchDesc, 1)
			defer m.RecordSSEConnectionChange(watchDesc, -1)
		}

		logger.DebugContext(ctx, "SSE client connected",
			"watch", watchDesc,
			"remote_addr", r.RemoteAddr,
		)

		cons, err := publisher.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject:     subject,
			AckPolicy:         jetstream.AckExplicitPolicy,
			DeliverPolicy:     jetstream.DeliverNewPolicy,
			InactiveThreshold: time.Minute,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to create consumer",
				"watch", watchDesc,
				"error", err,
			)
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-ctx.Done():
				}
			})
			if err != nil {
				logger.ErrorContext(ctx, "failed to start consuming messages", "error", err)
				return
			}
			<-ctx.Done()
			cc.Stop()
		}()

		connected, _ := json.Marshal(map[string]string{"watch": watchDesc})
		writeEvent(w, "connected", connected)

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush(w)

			case msg := <-msgChan:
				var event natspkg.SnapshotEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(ctx, "failed to unmarshal snapshot event", "error", err)
					msg.Ack()
					continue
				}

				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal snapshot event", "error", err)
					msg.Ack()
					continue
				}

				writeEvent(w, "snapshot", data)
				msg.Ack()

				if m != nil {
					m.RecordSSEEventSent(watchDesc, "snapshot")
				}
				logger.DebugContext(ctx, "sent snapshot event",
					"watch_id", event.WatchID,
					"block", event.BlockNumber,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"watch", watchDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
