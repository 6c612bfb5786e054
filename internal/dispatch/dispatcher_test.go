// ABOUTME: Tests for wildcard matching, handler ordering, and dispatch
// ABOUTME: Uses a fake bus client so no broker is needed
package dispatch

import (
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d", false},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/#", "a/b/c", true},
		{"a/#", "a", true},
		{"#", "anything/at/all", true},
		{"a/#/c", "a/b/c", false},
		{"+/+", "a/b", true},
		{"+", "a/b", false},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Matches(tc.pattern, tc.topic),
			"pattern %q topic %q", tc.pattern, tc.topic)
	}
}

func newTestDispatcher() *Dispatcher {
	return newWithClient(Config{ClientID: "test"}, newFakeClient())
}

func TestDispatchPriorityOrder(t *testing.T) {
	d := newTestDispatcher()
	var order []string

	d.RegisterHandler("cmd/#", 50, "low", func(_ *Dispatcher, _ string, _ []byte) bool {
		order = append(order, "low")
		return false
	})
	d.RegisterHandler("cmd/#", 150, "high", func(_ *Dispatcher, _ string, _ []byte) bool {
		order = append(order, "high")
		return false
	})
	d.RegisterHandler("cmd/#", 100, "mid", func(_ *Dispatcher, _ string, _ []byte) bool {
		order = append(order, "mid")
		return false
	})

	d.Dispatch("cmd/go", nil)
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestDispatchEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	d := newTestDispatcher()
	var order []string

	for _, name := range []string{"first", "second", "third"} {
		n := name
		d.RegisterHandler("x", 100, n, func(_ *Dispatcher, _ string, _ []byte) bool {
			order = append(order, n)
			return false
		})
	}

	d.Dispatch("x", nil)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatchFirstClaimStopsWalk(t *testing.T) {
	d := newTestDispatcher()
	lowCalled := false

	d.RegisterHandler("x", 150, "claimer", func(_ *Dispatcher, _ string, p []byte) bool {
		return string(p) == "claim"
	})
	d.RegisterHandler("x", 50, "fallback", func(_ *Dispatcher, _ string, _ []byte) bool {
		lowCalled = true
		return true
	})

	d.Dispatch("x", []byte("claim"))
	assert.False(t, lowCalled)

	d.Dispatch("x", []byte("other"))
	assert.True(t, lowCalled)
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	d := newTestDispatcher()
	called := false

	d.RegisterHandler("sensors/+/data", 100, "sensors", func(_ *Dispatcher, _ string, _ []byte) bool {
		called = true
		return true
	})

	d.Dispatch("sensors/kitchen/config", nil)
	assert.False(t, called)

	d.Dispatch("sensors/kitchen/data", nil)
	assert.True(t, called)
}

func TestUnregisterRemovesAllForPattern(t *testing.T) {
	d := newTestDispatcher()
	calls := 0

	d.RegisterHandler("x", 100, "a", func(_ *Dispatcher, _ string, _ []byte) bool {
		calls++
		return false
	})
	d.RegisterHandler("x", 50, "b", func(_ *Dispatcher, _ string, _ []byte) bool {
		calls++
		return false
	})

	d.Unregister("x")
	d.Dispatch("x", nil)
	assert.Zero(t, calls)
}

func TestReconnectFirstSubscribesAllPatterns(t *testing.T) {
	fc := newFakeClient()
	d := newWithClient(Config{ClientID: "test", StatusTopic: "gw/status"}, fc)

	noop := func(_ *Dispatcher, _ string, _ []byte) bool { return true }
	d.RegisterHandler("a/#", 100, "a", noop)
	d.RegisterHandler("b/+", 100, "b", noop)

	require.True(t, d.reconnect())
	assert.Equal(t, []string{"a/#", "b/+"}, fc.subs)

	require.Len(t, fc.published, 1)
	assert.Equal(t, "gw/status", fc.published[0].topic)
	assert.Equal(t, "online", string(fc.published[0].payload))
	assert.True(t, fc.published[0].retained)
}

func TestReconnectLaterResubscribesOnlySubscribed(t *testing.T) {
	fc := newFakeClient()
	d := newWithClient(Config{ClientID: "test"}, fc)

	noop := func(_ *Dispatcher, _ string, _ []byte) bool { return true }
	d.RegisterHandler("a/#", 100, "a", noop)
	d.RegisterHandler("b/+", 100, "b", noop)

	require.True(t, d.reconnect())
	require.True(t, d.Unsubscribe("b/+"))

	fc.subs = nil
	fc.connected = false
	require.True(t, d.reconnect())
	assert.Equal(t, []string{"a/#"}, fc.subs)
}

func TestPublishFailsWhenDisconnected(t *testing.T) {
	fc := newFakeClient()
	d := newWithClient(Config{ClientID: "test"}, fc)

	assert.False(t, d.Publish("x", []byte("y"), false))

	require.True(t, d.reconnect())
	assert.True(t, d.Publish("x", []byte("y"), false))
}

// fakeToken completes immediately with no error.
type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (fakeToken) Error() error { return nil }

type publishRecord struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeClient struct {
	connected bool
	subs      []string
	published []publishRecord
}

func newFakeClient() *fakeClient {
	return &fakeClient{}
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Connect() mqtt.Token {
	f.connected = true
	return fakeToken{}
}

func (f *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	f.subs = append(f.subs, topic)
	return fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	for _, t := range topics {
		kept := f.subs[:0]
		for _, s := range f.subs {
			if s != t {
				kept = append(kept, s)
			}
		}
		f.subs = kept
	}
	return fakeToken{}
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.published = append(f.published, publishRecord{topic: topic, payload: b, retained: retained})
	return fakeToken{}
}
