package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rover-control/roverd/hardware"
)

func TestSensorReadStaysInBounds(t *testing.T) {
	s := NewSensor(300)

	for i := 0; i < 200; i++ {
		r, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Distance, 0.0)
		assert.LessOrEqual(t, r.Distance, 300.0)
		assert.False(t, r.At.IsZero())
	}
}

func TestSensorReadObservesCancellation(t *testing.T) {
	s := NewSensor(300)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCameraDeliversFrames(t *testing.T) {
	c := NewCamera(5*time.Millisecond, 16)

	var (
		mu     sync.Mutex
		frames int
	)
	require.NoError(t, c.Start(func(frame []byte) {
		mu.Lock()
		frames++
		mu.Unlock()
		assert.Len(t, frame, 16)
	}))
	defer c.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, c.Recording())
}

func TestCameraStopBeforeAnyFrame(t *testing.T) {
	c := NewCamera(time.Hour, 16)

	require.NoError(t, c.Start(func([]byte) {}))
	require.NoError(t, c.Stop())
	assert.False(t, c.Recording())
}

func TestCameraStopIsIdempotent(t *testing.T) {
	c := NewCamera(time.Millisecond, 16)

	assert.NoError(t, c.Stop()) // never started
	require.NoError(t, c.Start(func([]byte) {}))
	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
}

func TestCameraDoubleStart(t *testing.T) {
	c := NewCamera(time.Millisecond, 16)

	require.NoError(t, c.Start(func([]byte) {}))
	defer c.Stop()
	assert.Error(t, c.Start(func([]byte) {}))
}

func TestMotorsRecordVectors(t *testing.T) {
	m := NewMotors()

	v := hardware.DriveVector{FrontLeft: 0.5, FrontRight: 0.5, RearLeft: 0.5, RearRight: 0.5}
	require.NoError(t, m.Drive(v))
	assert.Equal(t, v, m.Current())

	require.NoError(t, m.Stop())
	assert.True(t, m.Current().Zero())
	assert.Len(t, m.Applied(), 2)
}
