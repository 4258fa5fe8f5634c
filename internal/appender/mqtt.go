// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// MQTT publishes entries to an MQTT topic. The client reconnects
// automatically; publishes while disconnected fail and go through the
// appender retry policy.
//
// Properties:
//
//	brokerUrl:      broker address, tcp:// or ssl:// scheme (required)
//	topic:          target topic (default "tabularium/logs")
//	appendCategory: map the entry category onto the topic path (default false)
//	clientId:       MQTT client identifier (default "tabularium-<name>")
//	username:       broker username
//	password:       broker password
//	qos:            quality of service, 0 to 2 (default 1)
//	retained:       publish with the retained flag (default false)
//	connectTimeout: initial connect wait (default "10s")
//	publishTimeout: per-publish acknowledgment wait (default "5s")
type MQTT struct {
	*engine
	s *mqttSink
}

// NewMQTT creates an MQTT appender from the given configuration.
func NewMQTT(cfg config.AppenderConfig, lay layout.Layout) (*MQTT, error) {
	s := &mqttSink{appenderName: cfg.Name}
	m := &MQTT{s: s, engine: newEngine(cfg.Name, s)}
	if err := m.Configure(cfg); err != nil {
		return nil, err
	}
	m.SetLayout(lay)
	return m, nil
}

const (
	defaultMQTTTopic       = "tabularium/logs"
	defaultMQTTQoS         = 1
	defaultConnectTimeout  = 10 * time.Second
	defaultPublishTimeout  = 5 * time.Second
	defaultKeepAlive       = 60 * time.Second
	defaultConnectRetry    = 2 * time.Second
	defaultMaxReconnectGap = 60 * time.Second
	disconnectQuiesceMS    = 1000
)

type mqttSink struct {
	appenderName string

	mu             sync.Mutex
	brokerURL      string
	topic          string
	appendCategory bool
	clientID       string
	username       string
	password       string
	qos            byte
	retained       bool
	connectTimeout time.Duration
	publishTimeout time.Duration

	client    mqtt.Client
	connected bool
	everUp    bool
}

func (s *mqttSink) configure(props map[string]any) error {
	brokerURL := propString(props, "brokerUrl", "")
	if brokerURL == "" {
		return fmt.Errorf("mqtt appender requires a brokerUrl property")
	}

	qos := propInt(props, "qos", defaultMQTTQoS)
	if qos < 0 || qos > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1, or 2, got %d", qos)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && brokerURL != s.brokerURL {
		return fmt.Errorf("mqtt appender brokerUrl cannot change while running")
	}

	s.brokerURL = brokerURL
	s.topic = propString(props, "topic", defaultMQTTTopic)
	s.appendCategory = propBool(props, "appendCategory", false)
	s.clientID = propString(props, "clientId", "tabularium-"+s.appenderName)
	s.username = propString(props, "username", "")
	s.password = propString(props, "password", "")
	s.qos = byte(qos)
	s.retained = propBool(props, "retained", false)
	s.connectTimeout = propDuration(props, "connectTimeout", defaultConnectTimeout)
	s.publishTimeout = propDuration(props, "publishTimeout", defaultPublishTimeout)
	return nil
}

func (s *mqttSink) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.brokerURL)
	opts.SetClientID(s.clientID)
	if s.username != "" {
		opts.SetUsername(s.username)
		opts.SetPassword(s.password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(defaultConnectRetry)
	opts.SetMaxReconnectInterval(defaultMaxReconnectGap)
	opts.SetConnectTimeout(s.connectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if strings.HasPrefix(s.brokerURL, "ssl://") || strings.HasPrefix(s.brokerURL, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.mu.Lock()
		s.connected = true
		reconnect := s.everUp
		s.everUp = true
		s.mu.Unlock()

		if reconnect {
			metrics.MessagingReconnects.WithLabelValues("mqtt").Inc()
		}
		selflog.Info().
			Str("appender", s.appenderName).
			Str("broker", s.brokerURL).
			Bool("reconnect", reconnect).
			Msg("mqtt broker connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()

		selflog.Warn().
			Err(err).
			Str("appender", s.appenderName).
			Str("broker", s.brokerURL).
			Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s timed out after %s", s.brokerURL, s.connectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: %w", s.brokerURL, err)
	}

	s.client = client
	return nil
}

func (s *mqttSink) write(_ context.Context, recs []Record, _ string) error {
	s.mu.Lock()
	client := s.client
	topic := s.topic
	perCategory := s.appendCategory
	qos := s.qos
	retained := s.retained
	pubTimeout := s.publishTimeout
	s.mu.Unlock()

	if client == nil {
		return fmt.Errorf("mqtt appender is not open")
	}

	for _, rec := range recs {
		t := topic
		if perCategory && rec.Entry.Category != "" {
			t = topic + "/" + strings.ReplaceAll(rec.Entry.Category, ".", "/")
		}

		token := client.Publish(t, qos, retained, rec.Payload)
		if !token.WaitTimeout(pubTimeout) {
			metrics.RecordMessagingPublish("mqtt", fmt.Errorf("timeout"))
			return fmt.Errorf("mqtt publish to %s timed out after %s", t, pubTimeout)
		}
		if err := token.Error(); err != nil {
			metrics.RecordMessagingPublish("mqtt", err)
			return fmt.Errorf("mqtt publish to %s: %w", t, err)
		}
		metrics.RecordMessagingPublish("mqtt", nil)
	}
	return nil
}

func (s *mqttSink) close(context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.connected = false
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesceMS)
	}
	return nil
}
