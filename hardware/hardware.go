// Package hardware defines the contracts for the platform's physical
// collaborators. Implementations live in subpackages (sim for development
// and tests, gstcam for the real camera); driver internals are out of
// scope for the server itself.
package hardware

import (
	"context"
	"time"
)

// Reading is one distance measurement.
type Reading struct {
	Distance float64 // centimeters
	At       time.Time
}

// SensorSource returns the latest distance measurement. Read may fail
// transiently; callers are expected to log and carry on.
type SensorSource interface {
	Read(ctx context.Context) (Reading, error)
}

// FrameSink receives one encoded frame. The slice must not be retained
// or modified by the source after the call returns.
type FrameSink func(frame []byte)

// FrameSource produces encoded video frames into a sink once started.
// Stop must be safe to call before any frame has arrived, and more
// than once.
type FrameSource interface {
	Start(sink FrameSink) error
	Stop() error
}

// DriveVector holds one power value per wheel, in [-1, 1].
type DriveVector struct {
	FrontLeft  float64
	FrontRight float64
	RearLeft   float64
	RearRight  float64
}

// Zero reports whether the vector applies no power at all.
func (v DriveVector) Zero() bool {
	return v.FrontLeft == 0 && v.FrontRight == 0 && v.RearLeft == 0 && v.RearRight == 0
}

// Actuator applies drive vectors to the platform. Both calls are expected
// to be cheap relative to the caller; Stop cuts all power.
type Actuator interface {
	Drive(v DriveVector) error
	Stop() error
}
