// ABOUTME: Command bus handler registrations for the gateway
// ABOUTME: Maps topics and payloads onto engine, storage, and transfer operations
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Aurelay-Project/aurelay-go/internal/config"
	"github.com/Aurelay-Project/aurelay-go/internal/dispatch"
	"github.com/Aurelay-Project/aurelay-go/internal/engine"
	"github.com/Aurelay-Project/aurelay-go/internal/storage"
	"github.com/Aurelay-Project/aurelay-go/internal/transfer"
)

// registerHandlers binds the full command surface. Priorities put the
// playback and upload paths ahead of the general command parser.
func registerHandlers(d *dispatch.Dispatcher, eng *engine.Engine, store storage.Store, recv *transfer.Receiver) {
	d.RegisterHandler(config.TopicPlayAudio, 150, "play-audio",
		func(d *dispatch.Dispatcher, _ string, payload []byte) bool {
			eng.PlayFile(normalizeName(string(payload)))
			return true
		})

	d.RegisterHandler(config.TopicAudioRequest, 150, "upload-request",
		func(_ *dispatch.Dispatcher, _ string, payload []byte) bool {
			return recv.HandleRequest(payload)
		})

	d.RegisterHandler(config.TopicAudioChunk, 150, "upload-chunk",
		func(_ *dispatch.Dispatcher, _ string, payload []byte) bool {
			return recv.HandleChunk(payload)
		})

	d.RegisterHandler(config.TopicCommands, 100, "commands",
		func(d *dispatch.Dispatcher, _ string, payload []byte) bool {
			return handleCommand(d, eng, store, strings.TrimSpace(string(payload)))
		})
}

// handleCommand parses the text command surface. Unknown commands return
// false so a lower-priority handler may still claim them.
func handleCommand(d *dispatch.Dispatcher, eng *engine.Engine, store storage.Store, cmd string) bool {
	switch {
	case cmd == "stop_audio":
		eng.Stop()
		d.PublishString(config.TopicCommandStatus, "stopped")
		return true

	case cmd == "list_files":
		publishFileList(d, store)
		return true

	case cmd == "status":
		d.PublishString(config.TopicCommandStatus,
			fmt.Sprintf("mode=%s volume=%.2f", eng.CurrentMode(), eng.Volume()))
		return true

	case cmd == "start_stream":
		if !eng.StartStream() {
			d.PublishString(config.TopicCommandStatus, "stream_error")
		}
		return true

	case cmd == "stop_stream":
		eng.StopStream()
		return true

	case strings.HasPrefix(cmd, "volume="):
		v, err := strconv.ParseFloat(cmd[len("volume="):], 64)
		if err != nil {
			logrus.WithField("command", cmd).Warn("invalid volume value")
			return true
		}
		eng.SetVolume(v)
		return true

	case strings.HasPrefix(cmd, "play:"):
		eng.PlayFile(normalizeName(cmd[len("play:"):]))
		return true

	default:
		return false
	}
}

func publishFileList(d *dispatch.Dispatcher, store storage.Store) {
	entries, err := store.List()
	if err != nil {
		logrus.WithError(err).Error("failed to list files")
		d.PublishString(config.TopicFileList, "error")
		return
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	d.PublishString(config.TopicFileList, strings.Join(names, ","))
}

// normalizeName gives bare file names the leading slash the storage
// layer's wire format uses.
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if !strings.HasPrefix(name, "/") {
		return "/" + name
	}
	return name
}
