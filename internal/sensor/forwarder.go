// ABOUTME: Publishes sensor telemetry to the command bus
// ABOUTME: One topic per metric plus a presence message per report
package sensor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Aurelay-Project/aurelay-go/internal/config"
)

// Publisher is the outbound bus surface the forwarder needs.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) bool
}

// Forwarder publishes records on the per-metric telemetry topics.
type Forwarder struct {
	pub Publisher
	log *logrus.Entry
}

// NewForwarder creates a forwarder over the given bus.
func NewForwarder(pub Publisher) *Forwarder {
	return &Forwarder{
		pub: pub,
		log: logrus.WithField("component", "sensor"),
	}
}

// Forward publishes every metric of one record plus a presence note.
// Individual publish failures are logged and skipped; telemetry is
// best-effort.
func (f *Forwarder) Forward(rec Record) {
	metrics := []struct {
		topic string
		value string
	}{
		{config.TopicSensorTemperature, fmt.Sprintf("%.2f", rec.Temperature)},
		{config.TopicSensorHumidity, fmt.Sprintf("%.2f", rec.Humidity)},
		{config.TopicSensorPressure, fmt.Sprintf("%.2f", rec.Pressure)},
		{config.TopicSensorUVIndex, fmt.Sprintf("%.2f", rec.UVIndex)},
		{config.TopicSensorBattery, fmt.Sprintf("%d", rec.Battery)},
	}

	for _, m := range metrics {
		if !f.pub.Publish(m.topic, []byte(m.value), false) {
			f.log.WithField("topic", m.topic).Warn("telemetry publish failed")
		}
	}

	if rec.Name != "" {
		f.pub.Publish(config.TopicSensorStatus, []byte(rec.Name+" online"), false)
	}
}
