// Package dispatch turns recognized motion commands into timed actuation:
// apply a fixed drive vector, hold it for the kind's duration, then stop.
// Dispatch never blocks the caller; a new command preempts the one in
// flight and takes ownership of the actuator.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rover-control/roverd/hardware"
	"github.com/rover-control/roverd/model"
)

// Move is the fixed power level and hold duration for one command class.
type Move struct {
	Power float64
	Hold  time.Duration
}

type Config struct {
	Logger    *zerolog.Logger
	Actuator  hardware.Actuator
	Translate Move // forward, reverse
	Rotate    Move // rot_left, rot_right
}

type Dispatcher struct {
	logger   zerolog.Logger
	actuator hardware.Actuator
	moves    map[model.CommandKind]move

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

type move struct {
	vector hardware.DriveVector
	hold   time.Duration
}

func New(cfg Config) *Dispatcher {
	t, r := cfg.Translate, cfg.Rotate
	return &Dispatcher{
		logger:   cfg.Logger.With().Str("component", "dispatcher").Logger(),
		actuator: cfg.Actuator,
		moves: map[model.CommandKind]move{
			model.CommandForward: {
				vector: symmetric(t.Power),
				hold:   t.Hold,
			},
			model.CommandReverse: {
				vector: symmetric(-t.Power),
				hold:   t.Hold,
			},
			model.CommandRotateLeft: {
				vector: spin(-r.Power),
				hold:   r.Hold,
			},
			model.CommandRotateRight: {
				vector: spin(r.Power),
				hold:   r.Hold,
			},
		},
	}
}

// symmetric applies equal power to all wheels (translation).
func symmetric(p float64) hardware.DriveVector {
	return hardware.DriveVector{FrontLeft: p, FrontRight: p, RearLeft: p, RearRight: p}
}

// spin applies opposite-sign power to the left and right pairs. Positive p
// turns the platform right.
func spin(p float64) hardware.DriveVector {
	return hardware.DriveVector{FrontLeft: p, FrontRight: -p, RearLeft: p, RearRight: -p}
}

// Dispatch schedules the actuation for kind and returns immediately.
// An unrecognized kind is logged and produces no actuation. A command
// issued while a previous one is still holding preempts it: the old task
// exits without issuing its trailing stop, since the new task now owns
// the actuator.
func (d *Dispatcher) Dispatch(kind model.CommandKind) {
	mv, ok := d.moves[kind]
	if !ok {
		d.logger.Warn().Str("command", string(kind)).Msg("unknown command, ignoring")
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	d.logger.Debug().
		Str("command", string(kind)).
		Dur("hold", mv.hold).
		Msg("actuation scheduled")

	go d.run(ctx, gen, kind, mv)
}

func (d *Dispatcher) run(ctx context.Context, gen uint64, kind model.CommandKind, mv move) {
	if err := d.actuator.Drive(mv.vector); err != nil {
		d.logger.Error().Err(err).Str("command", string(kind)).Msg("failed to apply drive vector")
		// A stuck drive is a safety hazard, so the stop vector is
		// attempted even though the drive itself failed.
		d.stop(gen)
		return
	}

	timer := time.NewTimer(mv.hold)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Preempted; the successor drives the actuator now.
		return
	case <-timer.C:
	}
	d.stop(gen)
}

// stop issues the zero vector unless a newer command has taken over.
// The mutex stays held across the actuator call so a concurrent Dispatch
// cannot apply a fresh drive between the generation check and the stop;
// actuator calls are cheap by contract.
func (d *Dispatcher) stop(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.gen != gen {
		return
	}
	if err := d.actuator.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("failed to apply stop vector")
	}
}

// Halt preempts any in-flight actuation and stops the actuator. Called on
// session teardown so a timed drive never outlives its operator.
func (d *Dispatcher) Halt() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.gen++
	if err := d.actuator.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("failed to stop actuator during halt")
	}
}
