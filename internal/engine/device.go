package engine

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// DataCallback fills one hardware buffer with interleaved s16le PCM.
// It runs on the device's real-time thread and must not block, allocate,
// or log.
type DataCallback func(out []byte, frames uint32)

// Device abstracts the output device so the engine's state machine can be
// exercised without audio hardware
type Device interface {
	Start() error
	Stop() error
	Uninit()
}

// DeviceOpener opens playback devices and owns the backend context
type DeviceOpener interface {
	// Open creates and starts a playback device delivering s16le frames
	// through the callback. onStop fires if the device halts on its own
	// (hardware loss), not on explicit Stop.
	Open(channels, sampleRate uint32, cb DataCallback, onStop func()) (Device, error)
	Close() error
}

// MalgoOpener is the production DeviceOpener backed by malgo
type MalgoOpener struct {
	ctx *Context
}

// NewMalgoOpener initializes the malgo context for device creation
func NewMalgoOpener() (*MalgoOpener, error) {
	ctx, err := NewContext()
	if err != nil {
		return nil, err
	}
	return &MalgoOpener{ctx: ctx}, nil
}

// Open creates and starts a malgo playback device
func (o *MalgoOpener) Open(channels, sampleRate uint32, cb DataCallback, onStop func()) (Device, error) {
	if !o.ctx.IsValid() {
		return nil, fmt.Errorf("audio context is closed")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	slog.Debug("opening playback device",
		"channels", channels,
		"sample_rate", sampleRate,
		"format", "s16le")

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, framecount uint32) {
			cb(pOutputSample, framecount)
		},
		Stop: onStop,
	}

	device, err := malgo.InitDevice(o.ctx.Raw().Context, deviceConfig, callbacks)
	if err != nil {
		slog.Error("failed to initialize playback device", "error", err)
		return nil, err
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		slog.Error("failed to start playback device", "error", err)
		return nil, err
	}

	slog.Info("playback device started",
		"channels", channels,
		"sample_rate", sampleRate)

	return device, nil
}

// Close releases the malgo context
func (o *MalgoOpener) Close() error {
	return o.ctx.Close()
}
