// ABOUTME: Centralized MQTT topic names for the gateway
// ABOUTME: Shared by the dispatcher, transfer receiver, and sensor forwarder
package config

// Command and status topics.
const (
	TopicPlayAudio     = "smartalarm/play_audio"
	TopicCommands      = "smartalarm/commands"
	TopicCommandStatus = "smartalarm/status"
	TopicFileList      = "smartalarm/files"
	TopicAudioStatus   = "smartalarm/audio/status"
	TopicGatewayStatus = "smartalarm/gateway/status"
)

// Audio upload topics (gateway <-> uploader).
const (
	TopicAudioRequest  = "esp32/audio_request"  // uploader -> gateway (REQUEST_FREE_SPACE)
	TopicAudioChunk    = "esp32/audio_chunk"    // uploader -> gateway (START/CHUNK/END)
	TopicAudioResponse = "esp32/audio_response" // gateway -> uploader (FREE:...)
	TopicAudioAck      = "esp32/audio_ack"      // gateway -> uploader (ACK:<chunk_index>)
	TopicAudioResult   = "esp32/audio_status"   // gateway -> server (upload result)
)

// Remote sensor telemetry topics (forwarded from the relay listener).
const (
	TopicSensorTemperature = "smartalarm/sensor/temperature/outside"
	TopicSensorHumidity    = "smartalarm/sensor/humidity/outside"
	TopicSensorPressure    = "smartalarm/sensor/pressure/outside"
	TopicSensorUVIndex     = "smartalarm/sensor/uvindex/outside"
	TopicSensorBattery     = "smartalarm/sensor/battery/outside"
	TopicSensorStatus      = "smartalarm/sensor/status"
)
