package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/semihsipahi/climblearn-api/internal/domain"
)

// DefaultSubjectPrefix is the subject root for interaction events.
const DefaultSubjectPrefix = "interactions"

// ConnectNATS dials url with reconnect settings suitable for a long-running server.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("climblearn-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes interaction events to <prefix>.<sessionId>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher on nc. The caller owns nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject a session's events are published on.
func (p *NATSPublisher) Subject(sessionID string) string {
	return p.prefix + "." + subjectToken(sessionID)
}

// Publish sends entry as a new_interaction event.
func (p *NATSPublisher) Publish(ctx context.Context, entry domain.InteractionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{Type: EventNewInteraction, Data: entry})
	if err != nil {
		return fmt.Errorf("marshal interaction event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(entry.SessionID), data); err != nil {
		return fmt.Errorf("publish interaction event: %w", err)
	}
	return nil
}

// subjectToken makes s usable as a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
