package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rover-control/roverd/config"
	"github.com/rover-control/roverd/dispatch"
	"github.com/rover-control/roverd/hardware"
	"github.com/rover-control/roverd/hardware/gstcam"
	"github.com/rover-control/roverd/hardware/sim"
	"github.com/rover-control/roverd/registry"
	httpServer "github.com/rover-control/roverd/server/http"
	websocketServer "github.com/rover-control/roverd/server/websocket"
	"github.com/rover-control/roverd/session"
)

const simSensorMaxDistanceCM = 300

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		configPath = fs.StringP("config", "c", "", "path to config file")
		listenAddr = fs.StringP("listen-addr", "w", "", "control websocket listen address (overrides config)")
		logLevel   = fs.StringP("log-level", "l", "", "log level (overrides config)")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	lvl, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	var out io.Writer = os.Stdout
	if cfg.Log.File.Path != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Log.File.Path,
			MaxSize:    cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAge:     cfg.Log.File.MaxAgeDays,
		}
	}
	logger = zerolog.New(out).With().Timestamp().Logger().Level(lvl)

	camera := newCamera(cfg, &logger)
	sensor := sim.NewSensor(simSensorMaxDistanceCM)
	motors := sim.NewMotors()

	reg := registry.New(&logger)
	dispatcher := dispatch.New(dispatch.Config{
		Logger:    &logger,
		Actuator:  motors,
		Translate: dispatch.Move{Power: cfg.Drive.Translate.Power, Hold: cfg.Drive.Translate.Hold.Std()},
		Rotate:    dispatch.Move{Power: cfg.Drive.Rotate.Power, Hold: cfg.Drive.Rotate.Hold.Std()},
	})
	coordinator := session.New(session.Config{
		Logger:            &logger,
		Registry:          reg,
		Commands:          dispatcher,
		Sensor:            sensor,
		Camera:            camera,
		SensorInterval:    cfg.Sensor.Interval.Std(),
		SensorReadTimeout: cfg.Sensor.ReadTimeout.Std(),
		FrameWait:         cfg.Video.FrameWait.Std(),
		FrameSendInterval: cfg.FrameSendInterval(),
	})

	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:      &logger,
		Registry:    reg,
		Coordinator: coordinator,
		ListenAddr:  cfg.ListenAddr,
	})
	statusSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		Registry:   reg,
		ListenAddr: cfg.StatusAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go wsSrv.Run(ctx, wg, errc)
	go statusSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

func newCamera(cfg *config.Config, logger *zerolog.Logger) hardware.FrameSource {
	if cfg.Video.Source == "gst" {
		return gstcam.New(gstcam.Config{
			Logger:  logger,
			Device:  cfg.Video.Device,
			Width:   cfg.Video.Width,
			Height:  cfg.Video.Height,
			Quality: cfg.Video.Quality,
		})
	}
	return sim.NewCamera(200*time.Millisecond, 4096)
}
