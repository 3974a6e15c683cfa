package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

const streamSource = "nats"

// StreamConfig holds NATS transaction stream configuration.
type StreamConfig struct {
	URL      string
	Subject  string
	User     string
	Password string

	// Buffer is the per-subscriber channel size. Default: 64.
	Buffer int

	Logger  storekit.Logger
	Metrics storekit.Metrics
}

// Stream implements storekit.TransactionSource over a NATS subject carrying Notification JSON.
type Stream struct {
	conn    *nats.Conn
	subject string
	buffer  int
	logger  storekit.Logger
	metrics storekit.Metrics
}

// DialStream connects to NATS.
func DialStream(config StreamConfig) (*Stream, error) {
	if config.Subject == "" {
		return nil, errors.New("nats subject is required")
	}
	if config.URL == "" {
		config.URL = nats.DefaultURL
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	if config.Logger == nil {
		config.Logger = &storekit.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &storekit.NoopMetrics{}
	}
	logger := config.Logger

	var opts []nats.Option
	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}
	opts = append(opts,
		nats.Name("storekit"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected",
				storekit.Field{Key: "url", Value: nc.ConnectedUrl()},
				storekit.Field{Key: "error", Value: err})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", storekit.Field{Key: "url", Value: nc.ConnectedUrl()})
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed", storekit.Field{Key: "error", Value: nc.LastError()})
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", storekit.Field{Key: "error", Value: err})
		}),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
	)

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}

	return &Stream{
		conn:    conn,
		subject: config.Subject,
		buffer:  config.Buffer,
		logger:  logger,
		metrics: config.Metrics,
	}, nil
}

// Updates subscribes to the subject. The channel closes when ctx is done.
func (s *Stream) Updates(ctx context.Context) (<-chan storekit.VerificationResult, error) {
	sub := newSubscriber(ctx, s.buffer, s.logger, s.metrics)

	natsSub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		sub.handle(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", s.subject, err)
	}
	s.logger.Info("subscribed to transaction updates", storekit.Field{Key: "subject", Value: s.subject})

	go func() {
		<-ctx.Done()
		if err := natsSub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			s.logger.Warn("failed to unsubscribe", storekit.Field{Key: "error", Value: err})
		}
		sub.close()
	}()

	return sub.updates, nil
}

// Close drains and closes the NATS connection.
func (s *Stream) Close() error {
	return s.conn.Drain()
}

// subscriber decodes messages into updates. Sends stop once ctx is done so close never races
// an in-flight handler.
type subscriber struct {
	ctx     context.Context
	logger  storekit.Logger
	metrics storekit.Metrics

	mu      sync.RWMutex
	closed  bool
	updates chan storekit.VerificationResult
}

func newSubscriber(ctx context.Context, buffer int, logger storekit.Logger, metrics storekit.Metrics) *subscriber {
	return &subscriber{
		ctx:     ctx,
		logger:  logger,
		metrics: metrics,
		updates: make(chan storekit.VerificationResult, buffer),
	}
}

func (s *subscriber) handle(data []byte) {
	notification, err := storekit.ParseNotification(data)
	if err != nil {
		s.metrics.RecordNotification(streamSource, "invalid")
		s.logger.Warn("failed to decode notification", storekit.Field{Key: "error", Value: err})
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- notification.VerificationResult():
		status := "accepted"
		if !notification.Verified {
			status = "unverified"
		}
		s.metrics.RecordNotification(streamSource, status)
	case <-s.ctx.Done():
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}
