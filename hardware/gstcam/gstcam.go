// Package gstcam implements a FrameSource on top of a GStreamer capture
// pipeline: v4l2src → videoconvert → videoscale → capsfilter → jpegenc →
// appsink. Each appsink sample is copied out and handed to the sink
// callback as one encoded JPEG frame.
package gstcam

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/rover-control/roverd/hardware"
)

var (
	ErrAlreadyStarted = errors.New("camera already started")
	ErrPipeline       = errors.New("unable to build capture pipeline")
)

type Config struct {
	Logger  *zerolog.Logger
	Device  string
	Width   int
	Height  int
	Quality int
}

type Camera struct {
	logger  zerolog.Logger
	device  string
	width   int
	height  int
	quality int

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
}

func New(cfg Config) *Camera {
	return &Camera{
		logger:  cfg.Logger.With().Str("component", "gstcam").Logger(),
		device:  cfg.Device,
		width:   cfg.Width,
		height:  cfg.Height,
		quality: cfg.Quality,
	}
}

// Start builds the pipeline, wires the sample callback to sink and moves
// the pipeline to PLAYING. Frames begin arriving asynchronously.
func (c *Camera) Start(sink hardware.FrameSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline != nil {
		return ErrAlreadyStarted
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}
	src.SetProperty("device", c.device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,width=%d,height=%d", c.width, c.height)))

	encoder, err := gst.NewElement("jpegenc")
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}
	encoder.SetProperty("quality", c.quality)

	appsink, err := app.NewAppSink()
	if err != nil {
		return errors.Join(ErrPipeline, err)
	}
	appsink.SetProperty("sync", false)
	// Keep only the newest sample; the mailbox downstream is latest-wins
	// anyway, so buffering here just adds latency.
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, capsfilter, encoder, appsink.Element)
	if err = gst.ElementLinkMany(src, converter, scaler, capsfilter, encoder, appsink.Element); err != nil {
		return errors.Join(ErrPipeline, err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return c.onSample(s, sink)
		},
	})

	if err = pipeline.SetState(gst.StatePlaying); err != nil {
		return errors.Join(ErrPipeline, err)
	}

	c.pipeline = pipeline
	c.appsink = appsink
	c.logger.Info().
		Str("device", c.device).
		Str("resolution", fmt.Sprintf("%dx%d", c.width, c.height)).
		Int("quality", c.quality).
		Msg("capture started")
	return nil
}

// onSample copies one encoded frame out of the appsink. A bad sample is
// skipped rather than terminating the stream.
func (c *Camera) onSample(s *app.Sink, sink hardware.FrameSink) gst.FlowReturn {
	sample := s.PullSample()
	if sample == nil {
		c.logger.Warn().Msg("failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		c.logger.Warn().Msg("sample without buffer, skipping frame")
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		c.logger.Warn().Msg("empty buffer, skipping frame")
		return gst.FlowOK
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	sink(frame)
	return gst.FlowOK
}

// Stop tears the pipeline down. Safe to call before Start and repeatedly.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline == nil {
		return nil
	}
	err := c.pipeline.SetState(gst.StateNull)
	c.pipeline = nil
	c.appsink = nil
	if err != nil {
		return fmt.Errorf("failed to stop pipeline: %w", err)
	}
	c.logger.Info().Msg("capture stopped")
	return nil
}
