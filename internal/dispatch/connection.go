// ABOUTME: MQTT connection lifecycle for the dispatcher
// ABOUTME: Owns reconnect backoff, subscription bookkeeping, and publishing
package dispatch

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// reconnectBackoff is the minimum spacing between connect attempts.
	reconnectBackoff = 5 * time.Second
	// tokenTimeout bounds every broker operation so the mqtt task keeps
	// its cadence.
	tokenTimeout = 3 * time.Second
)

// busClient is the slice of the paho client the dispatcher uses. Kept as
// an interface so the connection lifecycle is testable without a broker.
type busClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Config holds the dispatcher's connection settings.
type Config struct {
	BrokerHost  string
	BrokerPort  int
	ClientID    string
	StatusTopic string
}

// Dispatcher owns the handler table and the bus connection. The paho
// message callback is a closure over this instance; there is no global
// bridge.
type Dispatcher struct {
	mu       sync.Mutex
	handlers []registration
	seq      int

	client          busClient
	cfg             Config
	subscribed      []string
	firstConnection bool
	lastReconnect   time.Time

	log *logrus.Entry
}

// New creates a dispatcher. An empty ClientID gets a uuid-suffixed
// default so parallel gateways never collide on the broker.
func New(cfg Config) *Dispatcher {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("aurelay-gateway-%s", uuid.New().String()[:8])
	}

	d := &Dispatcher{
		cfg:             cfg,
		firstConnection: true,
		log:             logrus.WithField("component", "dispatch"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.BrokerHost, cfg.BrokerPort)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(false).
		SetConnectTimeout(tokenTimeout).
		SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
			d.Dispatch(msg.Topic(), msg.Payload())
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			d.log.WithError(err).Warn("connection lost")
		})

	d.client = mqtt.NewClient(opts)
	return d
}

// newWithClient is the test seam for injecting a fake bus client.
func newWithClient(cfg Config, client busClient) *Dispatcher {
	return &Dispatcher{
		cfg:             cfg,
		client:          client,
		firstConnection: true,
		log:             logrus.WithField("component", "dispatch"),
	}
}

// Loop maintains the connection. Called periodically by the mqtt task;
// reconnect attempts are spaced by the backoff interval and failures are
// retried, never fatal.
func (d *Dispatcher) Loop() {
	if d.client.IsConnected() {
		return
	}

	d.mu.Lock()
	if time.Since(d.lastReconnect) < reconnectBackoff {
		d.mu.Unlock()
		return
	}
	d.lastReconnect = time.Now()
	d.mu.Unlock()

	d.reconnect()
}

// reconnect attempts one connection. On the first success it subscribes
// to every registered pattern; on later successes only to the patterns
// actually subscribed before, tolerating handlers registered but
// deliberately never subscribed.
func (d *Dispatcher) reconnect() bool {
	d.log.WithField("client_id", d.cfg.ClientID).Info("attempting connection")

	token := d.client.Connect()
	if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
		d.log.WithError(token.Error()).Warn("connection failed")
		return false
	}
	d.log.Info("connected")

	if d.cfg.StatusTopic != "" {
		d.publish(d.cfg.StatusTopic, []byte("online"), true)
	}

	d.mu.Lock()
	first := d.firstConnection
	d.firstConnection = false
	var patterns []string
	if first {
		for _, h := range d.handlers {
			patterns = append(patterns, h.pattern)
		}
	} else {
		patterns = append(patterns, d.subscribed...)
	}
	d.mu.Unlock()

	if first {
		for _, p := range patterns {
			d.Subscribe(p)
		}
	} else {
		for _, p := range patterns {
			token := d.client.Subscribe(p, 0, nil)
			token.WaitTimeout(tokenTimeout)
			d.log.WithField("pattern", p).Info("resubscribed")
		}
	}

	return true
}

// Subscribe subscribes to a topic filter and records it for reconnects.
func (d *Dispatcher) Subscribe(pattern string) bool {
	if !d.client.IsConnected() {
		d.log.WithField("pattern", pattern).Warn("cannot subscribe: not connected")
		return false
	}

	token := d.client.Subscribe(pattern, 0, nil)
	if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
		d.log.WithError(token.Error()).WithField("pattern", pattern).Warn("subscribe failed")
		return false
	}

	d.mu.Lock()
	tracked := false
	for _, s := range d.subscribed {
		if s == pattern {
			tracked = true
			break
		}
	}
	if !tracked {
		d.subscribed = append(d.subscribed, pattern)
	}
	d.mu.Unlock()

	d.log.WithField("pattern", pattern).Info("subscribed")
	return true
}

// Unsubscribe removes a broker subscription and its reconnect tracking.
func (d *Dispatcher) Unsubscribe(pattern string) bool {
	if !d.client.IsConnected() {
		return false
	}

	token := d.client.Unsubscribe(pattern)
	if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
		return false
	}

	d.mu.Lock()
	kept := d.subscribed[:0]
	for _, s := range d.subscribed {
		if s != pattern {
			kept = append(kept, s)
		}
	}
	d.subscribed = kept
	d.mu.Unlock()
	return true
}

// Publish sends a payload to a topic. Returns false when disconnected or
// on broker timeout; callers treat that as a degraded, non-fatal event.
func (d *Dispatcher) Publish(topic string, payload []byte, retain bool) bool {
	return d.publish(topic, payload, retain)
}

// PublishString is a convenience for the ASCII command surface.
func (d *Dispatcher) PublishString(topic, message string) bool {
	return d.publish(topic, []byte(message), false)
}

func (d *Dispatcher) publish(topic string, payload []byte, retain bool) bool {
	if !d.client.IsConnected() {
		d.log.WithField("topic", topic).Warn("cannot publish: not connected")
		return false
	}

	token := d.client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(tokenTimeout) || token.Error() != nil {
		d.log.WithError(token.Error()).WithField("topic", topic).Warn("publish failed")
		return false
	}
	return true
}

// IsConnected reports the current broker connection state.
func (d *Dispatcher) IsConnected() bool {
	return d.client.IsConnected()
}
