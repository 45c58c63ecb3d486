package audio

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// otoBufferBytes sizes the device buffer; 8 bytes per stereo float frame.
const otoBufferBytes = 8 * 1024

var (
	otoOnce       sync.Once
	otoContext    *oto.Context
	otoErr        error
	otoSampleRate int
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoSampleRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoSampleRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoSampleRate, sampleRate)
	}
	return otoContext, nil
}

type otoOutput struct {
	player *oto.Player
	reader *StreamReader
}

func openOto(sampleRate int, source SampleSource) (Output, error) {
	ctx, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl := ctx.NewPlayer(reader)
	pl.SetBufferSize(otoBufferBytes)
	pl.Play()
	return &otoOutput{player: pl, reader: reader}, nil
}

func (o *otoOutput) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
