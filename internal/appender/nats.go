// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// NATS publishes entries to a NATS subject through a Watermill
// publisher. With jetStream enabled the stream is auto-provisioned and
// entry IDs become Nats-Msg-Id headers so redeliveries deduplicate.
// With embedded enabled the appender boots an in-process NATS server
// and publishes to it, which gives a single binary durable fan-out
// without an external broker.
//
// Properties:
//
//	url:            broker URL (default "nats://127.0.0.1:4222", ignored when embedded)
//	subject:        target subject (default "tabularium.logs")
//	appendCategory: append the entry category to the subject (default false)
//	jetStream:      publish through JetStream (default false)
//	trackMsgId:     set Nats-Msg-Id for deduplication (default true with jetStream)
//	maxReconnects:  client reconnect attempts (default 60)
//	reconnectWait:  delay between reconnect attempts (default "2s")
//	embedded:       run an in-process NATS server (default false)
//	port:           embedded server port, -1 picks a free one (default 4222)
//	storeDir:       embedded JetStream storage directory
//	maxMemory:      embedded JetStream memory limit in bytes
//	maxStore:       embedded JetStream disk limit in bytes
type NATS struct {
	*engine
	s *natsSink
}

// NewNATS creates a NATS appender from the given configuration.
func NewNATS(cfg config.AppenderConfig, lay layout.Layout) (*NATS, error) {
	s := &natsSink{appenderName: cfg.Name}
	n := &NATS{s: s, engine: newEngine(cfg.Name, s)}
	if err := n.Configure(cfg); err != nil {
		return nil, err
	}
	n.SetLayout(lay)
	return n, nil
}

// ClientURL returns the URL publishes go to. For embedded servers this
// is only known after Start.
func (n *NATS) ClientURL() string {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if n.s.srv != nil {
		return n.s.srv.ClientURL()
	}
	return n.s.url
}

const (
	defaultNATSURL       = "nats://127.0.0.1:4222"
	defaultNATSSubject   = "tabularium.logs"
	defaultMaxReconnects = 60
	defaultReconnectWait = 2 * time.Second
	defaultReconnectBuf  = 8 * 1024 * 1024
	embeddedReadyTimeout = 30 * time.Second
	embeddedMaxPayload   = 8 * 1024 * 1024
	defaultEmbeddedPort  = 4222
)

type natsSink struct {
	appenderName string

	mu             sync.Mutex
	url            string
	subject        string
	appendCategory bool
	jetStream      bool
	trackMsgID     bool
	maxReconnects  int
	reconnectWait  time.Duration

	embedded  bool
	port      int
	storeDir  string
	maxMemory int64
	maxStore  int64

	srv *server.Server
	pub message.Publisher
}

func (s *natsSink) configure(props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := propString(props, "url", defaultNATSURL)
	embedded := propBool(props, "embedded", false)
	jetStream := propBool(props, "jetStream", false)

	if s.pub != nil {
		if url != s.url || embedded != s.embedded || jetStream != s.jetStream {
			return fmt.Errorf("nats appender connection settings cannot change while running")
		}
	}

	s.url = url
	s.embedded = embedded
	s.jetStream = jetStream
	s.subject = propString(props, "subject", defaultNATSSubject)
	s.appendCategory = propBool(props, "appendCategory", false)
	s.trackMsgID = propBool(props, "trackMsgId", jetStream)
	s.maxReconnects = propInt(props, "maxReconnects", defaultMaxReconnects)
	s.reconnectWait = propDuration(props, "reconnectWait", defaultReconnectWait)
	s.port = propInt(props, "port", defaultEmbeddedPort)
	s.storeDir = propString(props, "storeDir", "")
	s.maxMemory = propInt64(props, "maxMemory", 0)
	s.maxStore = propInt64(props, "maxStore", 0)
	return nil
}

func (s *natsSink) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub != nil {
		return nil
	}

	url := s.url
	if s.embedded {
		srv, err := s.startEmbedded()
		if err != nil {
			return err
		}
		s.srv = srv
		url = srv.ClientURL()
	}

	logger := newWatermillLogger(s.appenderName)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(s.maxReconnects),
		natsgo.ReconnectWait(s.reconnectWait),
		natsgo.ReconnectBufSize(defaultReconnectBuf),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			metrics.MessagingReconnects.WithLabelValues("nats").Inc()
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
		natsgo.ErrorHandler(func(nc *natsgo.Conn, sub *natsgo.Subscription, err error) {
			fields := watermill.LogFields{}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			logger.Error("NATS error", err, fields)
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !s.jetStream,
			AutoProvision: s.jetStream,
			TrackMsgId:    s.trackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		s.shutdownEmbeddedLocked()
		return fmt.Errorf("create nats publisher: %w", err)
	}
	s.pub = pub
	return nil
}

// startEmbedded boots the in-process server. Must be called with mu held.
func (s *natsSink) startEmbedded() (*server.Server, error) {
	storeDir := s.storeDir
	if storeDir == "" && s.jetStream {
		storeDir = filepath.Join(os.TempDir(), "tabularium-jetstream")
	}

	opts := &server.Options{
		ServerName:         "tabularium-logs",
		Host:               "127.0.0.1",
		Port:               s.port,
		JetStream:          s.jetStream,
		StoreDir:           storeDir,
		JetStreamMaxMemory: s.maxMemory,
		JetStreamMaxStore:  s.maxStore,
		DontListen:         false,
		Debug:              false,
		Trace:              false,
		NoLog:              false,
		MaxPayload:         embeddedMaxPayload,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	srv.ConfigureLogger()
	go srv.Start()

	if !srv.ReadyForConnections(embeddedReadyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready within %s", embeddedReadyTimeout)
	}

	selflog.Info().
		Str("appender", s.appenderName).
		Str("url", srv.ClientURL()).
		Bool("jetstream", s.jetStream).
		Msg("embedded nats server started")
	return srv, nil
}

func (s *natsSink) write(_ context.Context, recs []Record, _ string) error {
	s.mu.Lock()
	pub := s.pub
	subject := s.subject
	perCategory := s.appendCategory
	track := s.trackMsgID
	s.mu.Unlock()

	if pub == nil {
		return fmt.Errorf("nats appender is not open")
	}

	// Group by subject so one Publish call carries each batch slice.
	groups := make(map[string][]*message.Message)
	for _, rec := range recs {
		msg := message.NewMessage(rec.Entry.ID, rec.Payload)
		msg.Metadata.Set("level", string(rec.Entry.Level))
		msg.Metadata.Set("category", rec.Entry.Category)
		if track && msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}

		topic := subject
		if perCategory && rec.Entry.Category != "" {
			topic = subject + "." + rec.Entry.Category
		}
		groups[topic] = append(groups[topic], msg)
	}

	for topic, msgs := range groups {
		if err := pub.Publish(topic, msgs...); err != nil {
			metrics.MessagingPublishErrors.WithLabelValues("nats").Add(float64(len(msgs)))
			return fmt.Errorf("publish %d entries to %s: %w", len(msgs), topic, err)
		}
		metrics.MessagingPublishes.WithLabelValues("nats").Add(float64(len(msgs)))
	}
	return nil
}

func (s *natsSink) close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.pub != nil {
		err = s.pub.Close()
		s.pub = nil
	}
	if s.srv != nil {
		s.srv.Shutdown()
		done := make(chan struct{})
		go func() {
			s.srv.WaitForShutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			selflog.Warn().
				Str("appender", s.appenderName).
				Msg("embedded nats server shutdown timed out")
		}
		s.srv = nil
	}
	return err
}

// shutdownEmbeddedLocked tears down a half-opened embedded server. Must
// be called with mu held.
func (s *natsSink) shutdownEmbeddedLocked() {
	if s.srv == nil {
		return
	}
	s.srv.Shutdown()
	s.srv.WaitForShutdown()
	s.srv = nil
}

// watermillLogger bridges Watermill's logging interface onto selflog so
// publisher internals report through the pipeline diagnostics channel.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger(appenderName string) watermill.LoggerAdapter {
	return watermillLogger{fields: watermill.LogFields{"appender": appenderName}}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.emit(selflog.Error().Err(err), msg, fields)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.emit(selflog.Info(), msg, fields)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.emit(selflog.Debug(), msg, fields)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.emit(selflog.Trace(), msg, fields)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return watermillLogger{fields: merged}
}

func (l watermillLogger) emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
