// ABOUTME: Startup configuration for the gateway
// ABOUTME: Defaults merged with an optional YAML file; fixed after startup
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Broker describes the MQTT broker endpoint.
type Broker struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Jitter configures the streaming jitter buffer.
type Jitter struct {
	CapacityBytes  int `yaml:"capacity_bytes"`
	PrerollPercent int `yaml:"preroll_percent"`
}

// Audio configures the playback and streaming formats.
type Audio struct {
	FileSampleRate   int `yaml:"file_sample_rate"`
	StreamSampleRate int `yaml:"stream_sample_rate"`
	StreamChannels   int `yaml:"stream_channels"`
	FrameSamples     int `yaml:"frame_samples"`
	MaxPacketSize    int `yaml:"max_packet_size"`
}

// Storage configures the local audio file store.
type Storage struct {
	Dir           string `yaml:"dir"`
	CapacityBytes int64  `yaml:"capacity_bytes"`
}

// Config is the full startup configuration surface. Only volume is
// runtime-mutable, and only through the Audio Engine.
type Config struct {
	Broker      Broker  `yaml:"broker"`
	ClientID    string  `yaml:"client_id"`
	StatusTopic string  `yaml:"status_topic"`
	Volume      float64 `yaml:"volume"`
	Jitter      Jitter  `yaml:"jitter"`
	Audio       Audio   `yaml:"audio"`
	Storage     Storage `yaml:"storage"`
	StreamPort  int     `yaml:"stream_port"`
	SensorPort  int     `yaml:"sensor_port"`
}

// Default returns the built-in configuration, matching the device defaults.
func Default() Config {
	return Config{
		Broker:      Broker{Host: "broker.hivemq.com", Port: 1883},
		ClientID:    "",
		StatusTopic: TopicGatewayStatus,
		Volume:      0.5,
		Jitter: Jitter{
			CapacityBytes:  8192,
			PrerollPercent: 50,
		},
		Audio: Audio{
			FileSampleRate:   44100,
			StreamSampleRate: 48000,
			StreamChannels:   1,
			FrameSamples:     960,
			MaxPacketSize:    512,
		},
		Storage: Storage{
			Dir:           "audio",
			CapacityBytes: 4 * 1024 * 1024,
		},
		StreamPort: 8081,
		SensorPort: 8266,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Jitter.CapacityBytes <= 0 {
		return fmt.Errorf("jitter capacity must be positive, got %d", c.Jitter.CapacityBytes)
	}
	if c.Jitter.PrerollPercent < 0 || c.Jitter.PrerollPercent > 100 {
		return fmt.Errorf("preroll percent must be in [0,100], got %d", c.Jitter.PrerollPercent)
	}
	if c.Audio.MaxPacketSize <= 0 || c.Audio.MaxPacketSize > 0xFFFF {
		return fmt.Errorf("max packet size must fit a u16 length, got %d", c.Audio.MaxPacketSize)
	}
	return nil
}

// PrerollBytes returns the pre-roll trigger level in bytes.
func (c Config) PrerollBytes() int {
	return c.Jitter.CapacityBytes * c.Jitter.PrerollPercent / 100
}
