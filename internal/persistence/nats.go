package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/config"
)

// NATS wraps a NATS connection used for the JetStream work queue.
type NATS struct {
	Conn *nats.Conn
}

// NewNATS connects to the configured server and keeps reconnecting on loss.
func NewNATS(cfg config.NATSConfig, logger *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("alertbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return &NATS{Conn: nc}, nil
}

// Close drains and closes the connection.
func (n *NATS) Close() {
	if n != nil && n.Conn != nil {
		_ = n.Conn.Drain()
	}
}

// Ping verifies the connection is usable.
func (n *NATS) Ping(ctx context.Context) error {
	if n == nil || n.Conn == nil {
		return errors.New("nats connection not configured")
	}
	if !n.Conn.IsConnected() {
		return errors.New("nats not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		return n.Conn.FlushTimeout(time.Until(deadline))
	}
	return n.Conn.Flush()
}
