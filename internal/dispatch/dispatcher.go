// ABOUTME: Priority-ordered MQTT message dispatcher with wildcard patterns
// ABOUTME: Routes each inbound message to the first matching handler that claims it
package dispatch

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Handler processes one inbound message. Returning true claims the
// message and stops the walk; returning false lets lower-priority
// handlers see it, so a declining handler must leave connection state
// untouched.
type Handler func(d *Dispatcher, topic string, payload []byte) bool

type registration struct {
	pattern  string
	priority uint8
	name     string
	fn       Handler
	seq      int
}

// RegisterHandler adds a handler for a topic-filter pattern. The table is
// kept sorted by priority descending; equal priorities keep registration
// order.
func (d *Dispatcher) RegisterHandler(pattern string, priority uint8, name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	d.handlers = append(d.handlers, registration{
		pattern:  pattern,
		priority: priority,
		name:     name,
		fn:       fn,
		seq:      d.seq,
	})
	sort.SliceStable(d.handlers, func(i, j int) bool {
		return d.handlers[i].priority > d.handlers[j].priority
	})

	d.log.WithFields(logrus.Fields{
		"handler":  name,
		"pattern":  pattern,
		"priority": priority,
	}).Info("registered handler")
}

// Unregister removes every handler bound to the given pattern. Not used
// on the hot path; provided for symmetry with registration.
func (d *Dispatcher) Unregister(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.handlers[:0]
	for _, h := range d.handlers {
		if h.pattern != pattern {
			kept = append(kept, h)
		}
	}
	if len(kept) < len(d.handlers) {
		d.log.WithField("pattern", pattern).Info("unregistered handler")
	}
	d.handlers = kept
}

// Dispatch walks the handler table in priority order and invokes the
// callback of every handler whose pattern matches, stopping at the first
// that claims the message. An unclaimed message is logged, not an error.
func (d *Dispatcher) Dispatch(topic string, payload []byte) {
	d.mu.Lock()
	table := make([]registration, len(d.handlers))
	copy(table, d.handlers)
	d.mu.Unlock()

	for _, h := range table {
		if !Matches(h.pattern, topic) {
			continue
		}
		if h.fn(d, topic, payload) {
			d.log.WithFields(logrus.Fields{
				"topic":   topic,
				"handler": h.name,
			}).Debug("message handled")
			return
		}
	}

	d.log.WithField("topic", topic).Warn("no handler processed topic")
}

// Matches reports whether an MQTT topic filter matches a concrete topic.
// `+` matches exactly one level; `#` matches the remainder of the topic
// when it is the final pattern segment.
func Matches(pattern, topic string) bool {
	// Exact match fast path.
	if pattern == topic {
		return true
	}
	if !strings.ContainsAny(pattern, "+#") {
		return false
	}

	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")

	for i, seg := range ps {
		if seg == "#" {
			return i == len(ps)-1
		}
		if i >= len(ts) {
			return false
		}
		if seg == "+" {
			continue
		}
		if seg != ts[i] {
			return false
		}
	}

	return len(ps) == len(ts)
}
