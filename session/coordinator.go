// Package session drives the full lifecycle of one client connection:
// a sensor telemetry loop, a video telemetry loop and an inbound command
// loop, multiplexed over a single websocket through one writer goroutine.
package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rover-control/roverd/hardware"
	"github.com/rover-control/roverd/mailbox"
	"github.com/rover-control/roverd/model"
	"github.com/rover-control/roverd/registry"
)

const (
	defaultSensorInterval    = 100 * time.Millisecond
	defaultSensorReadTimeout = 250 * time.Millisecond
	defaultFrameWait         = 5 * time.Second
	defaultFrameSendInterval = 500 * time.Millisecond
	defaultTeardownWait      = 2 * time.Second

	defaultMaxMessageSize     = 9000
	defaultWriteDeadline      = 5 * time.Second
	defaultCloseWriteDeadline = 2 * time.Second

	// pongWait - pingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	// Small buffer so a telemetry loop is not lockstepped with the writer;
	// the latest-wins mailbox upstream keeps this from growing into a queue
	// of stale frames.
	txBufferSize = 8
)

// CommandSink receives recognized-or-not command strings. Dispatch must
// not block; Halt stops any actuation still in flight.
type CommandSink interface {
	Dispatch(kind model.CommandKind)
	Halt()
}

type Config struct {
	Logger   *zerolog.Logger
	Registry *registry.Registry
	Commands CommandSink
	Sensor   hardware.SensorSource
	Camera   hardware.FrameSource

	SensorInterval    time.Duration
	SensorReadTimeout time.Duration
	FrameWait         time.Duration
	FrameSendInterval time.Duration
	TeardownWait      time.Duration
}

type Coordinator struct {
	logger   zerolog.Logger
	registry *registry.Registry
	commands CommandSink
	sensor   hardware.SensorSource
	camera   hardware.FrameSource

	sensorInterval    time.Duration
	sensorReadTimeout time.Duration
	frameWait         time.Duration
	frameSendInterval time.Duration
	teardownWait      time.Duration
}

func New(cfg Config) *Coordinator {
	c := &Coordinator{
		logger:            cfg.Logger.With().Str("component", "session").Logger(),
		registry:          cfg.Registry,
		commands:          cfg.Commands,
		sensor:            cfg.Sensor,
		camera:            cfg.Camera,
		sensorInterval:    cfg.SensorInterval,
		sensorReadTimeout: cfg.SensorReadTimeout,
		frameWait:         cfg.FrameWait,
		frameSendInterval: cfg.FrameSendInterval,
		teardownWait:      cfg.TeardownWait,
	}
	if c.sensorInterval <= 0 {
		c.sensorInterval = defaultSensorInterval
	}
	if c.sensorReadTimeout <= 0 {
		c.sensorReadTimeout = defaultSensorReadTimeout
	}
	if c.frameWait <= 0 {
		c.frameWait = defaultFrameWait
	}
	if c.frameSendInterval <= 0 {
		c.frameSendInterval = defaultFrameSendInterval
	}
	if c.teardownWait <= 0 {
		c.teardownWait = defaultTeardownWait
	}
	return c
}

// Run owns conn until the peer disconnects or the session is closed
// externally. All spawned activities are cancelled as a unit before Run
// returns; teardown is idempotent across those paths.
func (c *Coordinator) Run(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.NewString()
	sess := registry.NewSession(id, conn.RemoteAddr().String(), cancel)
	logger := c.logger.With().
		Str("sessionID", id).
		Str("remoteAddr", sess.RemoteAddr).
		Logger()

	if err := c.registry.Add(sess); err != nil {
		logger.Error().Err(err).Msg("failed to register session")
		_ = conn.Close()
		return
	}
	logger.Info().Msg("client connected")

	box := mailbox.New()
	cameraOn := false
	if err := c.camera.Start(box.Put); err != nil {
		// Telemetry and commands still work without video; the video
		// loop will report the stall.
		logger.Error().Err(err).Msg("failed to start camera")
	} else {
		cameraOn = true
	}

	tx := make(chan []byte, txBufferSize)
	wg := &sync.WaitGroup{}

	wg.Add(3)
	go func() {
		c.writeLoop(ctx, conn, tx, &logger)
		cancel()
		wg.Done()
	}()
	go func() {
		c.sensorLoop(ctx, id, tx, &logger)
		cancel()
		wg.Done()
	}()
	go func() {
		c.videoLoop(ctx, id, box, tx, &logger)
		cancel()
		wg.Done()
	}()

	// Unblock a pending ReadMessage when the session is closed externally.
	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	c.readLoop(ctx, conn, &logger)
	cancel()

	c.commands.Halt()
	// Only the session that started the capture stops it; a session whose
	// Start was rejected must not tear down another session's video.
	if cameraOn {
		if err := c.camera.Stop(); err != nil {
			logger.Error().Err(err).Msg("failed to stop camera")
		}
	}
	if !waitTimeout(wg, c.teardownWait) {
		logger.Warn().Msg("timed out waiting for session loops to stop")
	}
	closeConn(conn, &logger)
	c.registry.Remove(id)
	logger.Info().Uint64("framesDropped", box.Drops()).Msg("session closed")
}

// sensorLoop reads the distance sensor at a fixed cadence and queues one
// sensor message per reading. Read failures are transient: logged and
// skipped. The loop is terminal only on cancellation or deregistration.
func (c *Coordinator) sensorLoop(ctx context.Context, id string, tx chan<- []byte, logger *zerolog.Logger) {
	ticker := time.NewTicker(c.sensorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.registry.Contains(id) {
				return
			}
			readCtx, readCancel := context.WithTimeout(ctx, c.sensorReadTimeout)
			reading, err := c.sensor.Read(readCtx)
			readCancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Msg("sensor read failed")
				continue
			}
			b, err := json.Marshal(model.SensorMessage{
				Type:     model.MessageTypeSensor,
				Distance: reading.Distance,
			})
			if err != nil {
				logger.Error().Err(err).Msg("failed to marshal sensor message")
				continue
			}
			select {
			case tx <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

// videoLoop waits on the frame mailbox and queues video messages, capped
// at the configured wire rate regardless of how fast the camera captures.
// A camera stall is tolerated: the wait times out, gets logged and the
// loop keeps waiting.
func (c *Coordinator) videoLoop(ctx context.Context, id string, box *mailbox.Mailbox, tx chan<- []byte, logger *zerolog.Logger) {
	for {
		if !c.registry.Contains(id) {
			return
		}
		frame, err := box.Next(ctx, c.frameWait)
		if err != nil {
			if errors.Is(err, mailbox.ErrNoFrame) {
				logger.Warn().Dur("wait", c.frameWait).Msg("no frame from camera, still waiting")
				continue
			}
			return
		}
		if len(frame) == 0 {
			logger.Warn().Msg("empty frame, skipping")
			continue
		}
		b, err := json.Marshal(model.VideoMessage{
			Type: model.MessageTypeVideo,
			Size: len(frame),
			Data: hex.EncodeToString(frame),
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to marshal video message")
			continue
		}
		select {
		case tx <- b:
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(c.frameSendInterval):
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop is the only goroutine writing to conn, so sensor and video
// messages never interleave mid-write. Any write error is terminal for
// the whole session.
func (c *Coordinator) writeLoop(ctx context.Context, conn *websocket.Conn, tx <-chan []byte, logger *zerolog.Logger) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
				logger.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logger.Warn().Err(err).Msg("failed to send ping")
				return
			}
			logger.Trace().Msg("ping sent")
		case b := <-tx:
			if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
				logger.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Warn().Err(err).Msg("failed to write outgoing message")
				return
			}
		}
	}
}

// readLoop receives inbound messages until the connection closes.
// Malformed payloads are logged and ignored; recognized command envelopes
// are handed to the dispatcher without waiting for actuation.
func (c *Coordinator) readLoop(ctx context.Context, conn *websocket.Conn, logger *zerolog.Logger) {
	conn.SetReadLimit(defaultMaxMessageSize)
	readDeadlineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadlineFunc(defaultPongWait)
	})
	if err := readDeadlineFunc(defaultPongWait); err != nil {
		logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("connection closed")
			} else {
				logger.Error().Err(err).Msg("unexpected error during receive")
			}
			return
		}

		var in model.Inbound
		if err = json.Unmarshal(msg, &in); err != nil {
			logger.Warn().Err(err).Msg("malformed message, ignoring")
			continue
		}
		if in.Type != model.MessageTypeCommand {
			logger.Warn().Str("type", in.Type).Msg("unexpected message type, ignoring")
			continue
		}
		c.commands.Dispatch(model.CommandKind(in.Command))
	}
}

func closeConn(conn *websocket.Conn, logger *zerolog.Logger) {
	// The write loop may still be blocked inside WriteMessage when the
	// bounded teardown wait gives up on a stalled peer. WriteControl and
	// Close are the only writes safe concurrently with that.
	deadline := time.Now().Add(defaultCloseWriteDeadline)
	if err := conn.WriteControl(websocket.CloseMessage, []byte{}, deadline); err != nil {
		logger.Debug().Err(err).Msg("failed to send close message")
	}
	if err := conn.Close(); err != nil {
		logger.Debug().Err(err).Msg("failed to close connection")
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
