// ABOUTME: Entry point for the Aurelay gateway
// ABOUTME: Wires config, bus, engine, transfer, sensors, and the task roster
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Aurelay-Project/aurelay-go/internal/config"
	"github.com/Aurelay-Project/aurelay-go/internal/discovery"
	"github.com/Aurelay-Project/aurelay-go/internal/dispatch"
	"github.com/Aurelay-Project/aurelay-go/internal/display"
	"github.com/Aurelay-Project/aurelay-go/internal/engine"
	"github.com/Aurelay-Project/aurelay-go/internal/jitter"
	"github.com/Aurelay-Project/aurelay-go/internal/sensor"
	"github.com/Aurelay-Project/aurelay-go/internal/storage"
	"github.com/Aurelay-Project/aurelay-go/internal/stream"
	"github.com/Aurelay-Project/aurelay-go/internal/tasks"
	"github.com/Aurelay-Project/aurelay-go/internal/transfer"
	"github.com/Aurelay-Project/aurelay-go/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	logFile     = flag.String("log-file", "aurelay-gateway.log", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable the status display, stream logs to stdout")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const sensorPublishInterval = 10 * time.Second

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open log file")
	}
	defer f.Close()

	if useTUI {
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logrus.WithFields(logrus.Fields{
		"version": version.Version,
		"broker":  fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
	}).Info("gateway starting")

	store, err := storage.NewLocal(afero.NewOsFs(), cfg.Storage.Dir, cfg.Storage.CapacityBytes)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open storage")
	}

	disp := dispatch.New(dispatch.Config{
		BrokerHost:  cfg.Broker.Host,
		BrokerPort:  cfg.Broker.Port,
		ClientID:    cfg.ClientID,
		StatusTopic: cfg.StatusTopic,
	})

	buf := jitter.New(cfg.Jitter.CapacityBytes, cfg.PrerollBytes())
	bus := engine.NewOtoBus()
	eng := engine.New(engine.Config{
		FileSampleRate:   cfg.Audio.FileSampleRate,
		StreamSampleRate: cfg.Audio.StreamSampleRate,
		StreamChannels:   cfg.Audio.StreamChannels,
		FrameSamples:     cfg.Audio.FrameSamples,
		MaxPacketSize:    cfg.Audio.MaxPacketSize,
		Volume:           cfg.Volume,
	}, bus, store, buf, func(status string) {
		disp.PublishString(config.TopicAudioStatus, status)
	})
	if err := eng.Begin(); err != nil {
		logrus.WithError(err).Fatal("audio subsystem failed to start")
	}

	receiver := transfer.New(store, disp)
	registerHandlers(disp, eng, store, receiver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := sensor.NewListener(cfg.SensorPort, 16)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start sensor listener")
	}
	go listener.Run(ctx)
	forwarder := sensor.NewForwarder(disp)

	ingress := stream.NewServer(cfg.StreamPort, eng)
	go func() {
		if err := ingress.Run(ctx); err != nil {
			logrus.WithError(err).Error("stream ingress stopped")
		}
	}()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "aurelay"
	}
	adv := discovery.NewAdvertiser(fmt.Sprintf("%s-gateway", hostname), cfg.StreamPort)
	if err := adv.Advertise(ctx); err != nil {
		logrus.WithError(err).Warn("mdns advertisement unavailable")
	}

	var ctrl *display.Control
	var prog *tea.Program
	if useTUI {
		ctrl = display.NewControl()
		prog, err = display.Run(ctrl)
		if err != nil {
			logrus.WithError(err).Fatal("failed to start display")
		}
		go prog.Run()
	}

	runner := tasks.NewRunner(roster(disp, eng, buf, receiver, listener, forwarder, prog))
	runner.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if ctrl != nil {
		select {
		case <-ctrl.Quit:
			logrus.Info("quit requested from display")
		case <-sigChan:
			logrus.Info("shutdown signal received")
		}
	} else {
		<-sigChan
		logrus.Info("shutdown signal received")
	}

	cancel()
	runner.Wait()
	if prog != nil {
		prog.Quit()
	}

	eng.Stop()
	bus.Close()
	logrus.Info("gateway stopped")
}

// roster builds the fixed task table. Periods and priorities mirror the
// device firmware this gateway grew out of.
func roster(disp *dispatch.Dispatcher, eng *engine.Engine, buf *jitter.Buffer,
	receiver *transfer.Receiver, listener *sensor.Listener,
	forwarder *sensor.Forwarder, prog *tea.Program) []tasks.Task {

	var lastRecord sensor.Record
	var haveRecord bool
	var lastPublish time.Time

	// Shared with the display task, so the name travels through an
	// atomic slot rather than a bare string.
	var lastSensorName atomic.Value
	lastSensorName.Store("")

	return []tasks.Task{
		{
			Name:     "audio-decode",
			Priority: 3,
			Period:   10 * time.Millisecond,
			Run:      eng.Advance,
		},
		{
			Name:     "mqtt",
			Priority: 2,
			Period:   100 * time.Millisecond,
			Run:      disp.Loop,
		},
		{
			Name:     "sensors",
			Priority: 1,
			Period:   2 * time.Second,
			Run: func() {
			drain:
				for {
					select {
					case rec := <-listener.Records():
						lastRecord = rec
						haveRecord = true
					default:
						break drain
					}
				}
				// Telemetry yields the bus to an in-flight upload.
				if !haveRecord || receiver.Receiving() {
					return
				}
				if time.Since(lastPublish) < sensorPublishInterval {
					return
				}
				forwarder.Forward(lastRecord)
				lastSensorName.Store(lastRecord.Name)
				lastPublish = time.Now()
			},
		},
		{
			Name:     "transfer-watchdog",
			Priority: 1,
			Period:   time.Second,
			Run: func() {
				receiver.CheckTimeout(time.Now())
			},
		},
		{
			Name:     "display",
			Priority: 0,
			Period:   200 * time.Millisecond,
			Run: func() {
				if prog == nil {
					return
				}
				connected := disp.IsConnected()
				volume := eng.Volume()
				uploading := receiver.Receiving()
				prog.Send(display.StatusMsg{
					Connected:     &connected,
					Mode:          eng.CurrentMode().String(),
					Volume:        &volume,
					BufferBytes:   buf.Len(),
					BufferDropped: buf.Dropped(),
					Uploading:     &uploading,
					LastSensor:    lastSensorName.Load().(string),
				})
			},
		},
	}
}
