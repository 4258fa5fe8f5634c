// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/selflog"
	ws "github.com/tomtom215/tabularium/internal/websocket"
)

// Defaults mirror the nats appender, so a relay with no explicit tail
// settings listens where local appenders publish.
const (
	defaultTailURL     = "nats://127.0.0.1:4222"
	defaultTailSubject = "tabularium.logs"

	tailBufferSize   = 256
	tailCloseTimeout = 10 * time.Second
)

// initTailRelay builds the broker-fed tail relay when enabled. The
// returned subscriber outlives the relay and must be closed by the
// caller after the relay stops.
func initTailRelay(cfg *config.NATSConfig, hub *ws.Hub) (*ws.Relay, *tailSubscriber, error) {
	if !cfg.TailRelay {
		return nil, nil, nil
	}

	url := cfg.TailURL
	if url == "" {
		url = defaultTailURL
	}
	subject := cfg.TailSubject
	if subject == "" {
		subject = defaultTailSubject
	}

	sub, err := newTailSubscriber(url)
	if err != nil {
		return nil, nil, err
	}

	selflog.Info().
		Str("url", url).
		Str("subject", subject).
		Msg("Tail relay enabled")

	return ws.NewRelay(hub, sub, subject), sub, nil
}

// tailSubscriber adapts a Watermill core NATS subscription to the
// relay's Subscriber interface. The tail is lossy on purpose: no
// JetStream consumer state is created for it, and payloads the hub
// cannot take immediately are dropped rather than queued.
type tailSubscriber struct {
	sub message.Subscriber
}

func newTailSubscriber(url string) (*tailSubscriber, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				selflog.Warn().Err(err).Msg("Tail subscriber disconnected from broker")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			selflog.Info().Str("url", nc.ConnectedUrl()).Msg("Tail subscriber reconnected to broker")
		}),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		CloseTimeout:     tailCloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, watermill.NewSlogLogger(selflog.NewSlogLogger()))
	if err != nil {
		return nil, fmt.Errorf("create tail subscriber: %w", err)
	}

	return &tailSubscriber{sub: sub}, nil
}

// Subscribe subscribes to the subject and forwards message payloads.
// The returned channel closes when the subscription's context ends.
func (s *tailSubscriber) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	messages, err := s.sub.Subscribe(ctx, subject)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, tailBufferSize)
	go func() {
		defer close(out)
		for msg := range messages {
			select {
			case out <- msg.Payload:
			default:
			}
			msg.Ack()
		}
	}()

	return out, nil
}

// Close releases the broker connection.
func (s *tailSubscriber) Close() error {
	return s.sub.Close()
}
