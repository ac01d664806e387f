// Package changefeed consumes database change notifications from NATS.
//
// Notifications are JSON documents; only the operation name is required:
//
//	{"op": "update", "collection": "orders", "id": "42", "ts": "2026-01-02T15:04:05Z"}
//
// The consumer keeps counts per operation so the change rate can be read
// next to the connection timings.
package changefeed

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Stats summarizes the notifications received so far.
type Stats struct {
	Subject     string           `json:"subject"`
	Received    int64            `json:"received"`
	Malformed   int64            `json:"malformed"`
	ByOperation map[string]int64 `json:"byOperation,omitempty"`
	ByTarget    map[string]int64 `json:"byCollection,omitempty"`
	LastChange  *time.Time       `json:"lastChange,omitempty"`
}

// Counter tallies change notifications. It is safe for concurrent use.
type Counter struct {
	mu        sync.Mutex
	subject   string
	received  int64
	malformed int64
	byOp      map[string]int64
	byTarget  map[string]int64
	last      time.Time
	now       func() time.Time
}

func NewCounter(subject string) *Counter {
	return &Counter{
		subject:  subject,
		byOp:     make(map[string]int64),
		byTarget: make(map[string]int64),
		now:      time.Now,
	}
}

// Handle parses and counts one notification payload. It reports false for
// payloads that are not JSON objects carrying an op field.
func (c *Counter) Handle(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.received++
	if !gjson.ValidBytes(data) {
		c.malformed++
		return false
	}
	doc := gjson.ParseBytes(data)
	op := strings.ToLower(strings.TrimSpace(doc.Get("op").String()))
	if !doc.IsObject() || op == "" {
		c.malformed++
		return false
	}
	c.byOp[op]++
	if target := doc.Get("collection").String(); target != "" {
		c.byTarget[target]++
	}

	c.last = c.now()
	if ts := doc.Get("ts"); ts.Exists() {
		if parsed, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			c.last = parsed
		}
	}
	return true
}

// Stats returns a copy of the current counts.
func (c *Counter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Subject: c.subject, Received: c.received, Malformed: c.malformed}
	if len(c.byOp) > 0 {
		s.ByOperation = make(map[string]int64, len(c.byOp))
		for k, v := range c.byOp {
			s.ByOperation[k] = v
		}
	}
	if len(c.byTarget) > 0 {
		s.ByTarget = make(map[string]int64, len(c.byTarget))
		for k, v := range c.byTarget {
			s.ByTarget[k] = v
		}
	}
	if !c.last.IsZero() {
		last := c.last
		s.LastChange = &last
	}
	return s
}

// Subscriber feeds a NATS subject into a Counter.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	counter *Counter
	logger  *zap.Logger
}

// NewSubscriber connects to the NATS server at url.
func NewSubscriber(url, subject string, logger *zap.Logger) (*Subscriber, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("changefeed subject is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("subject", subject))

	nc, err := nats.Connect(url,
		nats.Name("connprobe-changefeed"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("changefeed disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("changefeed reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Info("connected to changefeed", zap.String("url", nc.ConnectedUrl()))
	return &Subscriber{nc: nc, subject: subject, counter: NewCounter(subject), logger: log}, nil
}

// Start subscribes to the subject and starts counting notifications.
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		if !s.counter.Handle(msg.Data) {
			s.logger.Debug("malformed change notification", zap.Int("bytes", len(msg.Data)))
		}
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("subscribed to changefeed")
	return nil
}

// Stats returns the notification counts.
func (s *Subscriber) Stats() Stats {
	return s.counter.Stats()
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("changefeed connection closed")
	}
}
