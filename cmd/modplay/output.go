package main

import (
	"encoding/binary"
	"math"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/ebitengine/oto/v3"
	"github.com/gordonklaus/portaudio"

	"github.com/chriskillpack/protracker/cmd/internal/config"
)

// framesPerBuffer is the portaudio callback size, about 12ms at 44.1kHz.
const framesPerBuffer = 512

// renderFunc fills out with the next mono samples.
type renderFunc func(out []float32)

// output is an audio device pulling samples from a renderFunc.
type output interface {
	Start() error
	Close() error
}

func newOutput(backend string, hz int, render renderFunc) (output, error) {
	switch backend {
	case config.BackendPortAudio:
		return newPortAudioOutput(hz, render)
	default:
		return newOtoOutput(hz, render)
	}
}

// otoOutput plays through oto. oto pulls little endian float32 bytes from
// Read on its own goroutine.
type otoOutput struct {
	ctx    *oto.Context
	player *oto.Player
	render renderFunc
	buf    []float32
}

func newOtoOutput(hz int, render renderFunc) (*otoOutput, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   hz,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("could not open audio device"))
	}
	<-ready

	o := &otoOutput{
		ctx:    ctx,
		render: render,
		buf:    make([]float32, 4096),
	}
	o.player = ctx.NewPlayer(o)
	return o, nil
}

func (o *otoOutput) Read(p []byte) (int, error) {
	n := len(p) / 4
	if len(o.buf) < n {
		o.buf = make([]float32, n)
	}
	samples := o.buf[:n]
	o.render(samples)

	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return n * 4, nil
}

func (o *otoOutput) Start() error {
	o.player.Play()
	return nil
}

func (o *otoOutput) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return fault.Wrap(err, fmsg.With("could not close audio device"))
	}
	return nil
}

// portAudioOutput plays through a portaudio callback stream.
type portAudioOutput struct {
	stream *portaudio.Stream
}

func newPortAudioOutput(hz int, render renderFunc) (*portAudioOutput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("could not initialize portaudio"))
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(hz), framesPerBuffer, func(out []float32) {
		render(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fault.Wrap(err, fmsg.With("could not open audio device"))
	}
	return &portAudioOutput{stream: stream}, nil
}

func (o *portAudioOutput) Start() error {
	if err := o.stream.Start(); err != nil {
		return fault.Wrap(err, fmsg.With("could not start audio stream"))
	}
	return nil
}

func (o *portAudioOutput) Close() error {
	o.stream.Stop()
	err := o.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fault.Wrap(err, fmsg.With("could not close audio device"))
	}
	return nil
}
