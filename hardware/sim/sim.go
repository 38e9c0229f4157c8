// Package sim provides in-memory stand-ins for the platform hardware.
// Used in development mode and throughout the test suite.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rover-control/roverd/hardware"
)

// Sensor produces a bounded random-walk distance.
type Sensor struct {
	mu       sync.Mutex
	distance float64
	max      float64
	rnd      *rand.Rand
}

func NewSensor(maxDistanceCM float64) *Sensor {
	return &Sensor{
		distance: maxDistanceCM / 2,
		max:      maxDistanceCM,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sensor) Read(ctx context.Context) (hardware.Reading, error) {
	if err := ctx.Err(); err != nil {
		return hardware.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.distance += (s.rnd.Float64() - 0.5) * 10
	if s.distance < 0 {
		s.distance = 0
	}
	if s.distance > s.max {
		s.distance = s.max
	}
	return hardware.Reading{Distance: s.distance, At: time.Now()}, nil
}

// Camera emits synthetic frames at a fixed interval once started.
type Camera struct {
	mu        sync.Mutex
	interval  time.Duration
	frameSize int
	stop      chan struct{}
	recording bool
	seq       uint64
}

func NewCamera(interval time.Duration, frameSize int) *Camera {
	return &Camera{
		interval:  interval,
		frameSize: frameSize,
	}
}

func (c *Camera) Start(sink hardware.FrameSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return fmt.Errorf("sim camera already recording")
	}
	c.recording = true
	c.stop = make(chan struct{})

	go c.produce(c.stop, sink)
	return nil
}

func (c *Camera) produce(stop <-chan struct{}, sink hardware.FrameSink) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.seq++
			seq := c.seq
			c.mu.Unlock()

			frame := make([]byte, c.frameSize)
			for i := range frame {
				frame[i] = byte(seq)
			}
			sink(frame)
		}
	}
}

// Stop is safe before the first frame and on an already stopped camera.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording {
		return nil
	}
	c.recording = false
	close(c.stop)
	return nil
}

func (c *Camera) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Motors records the applied drive vectors so tests can assert on them.
type Motors struct {
	mu      sync.Mutex
	applied []hardware.DriveVector
	current hardware.DriveVector
}

func NewMotors() *Motors {
	return &Motors{}
}

func (m *Motors) Drive(v hardware.DriveVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, v)
	m.current = v
	return nil
}

func (m *Motors) Stop() error {
	return m.Drive(hardware.DriveVector{})
}

// Current returns the vector currently applied.
func (m *Motors) Current() hardware.DriveVector {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Applied returns every vector applied so far, in order.
func (m *Motors) Applied() []hardware.DriveVector {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hardware.DriveVector, len(m.applied))
	copy(out, m.applied)
	return out
}
