//go:build portaudio

package audio

import "github.com/gordonklaus/portaudio"

// portaudioFrames is the callback block size in frames.
const portaudioFrames = 512

func init() {
	Register(PortAudio, openPortAudio)
}

type portaudioOutput struct {
	stream *portaudio.Stream
}

func openPortAudio(sampleRate int, source SampleSource) (Output, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s, err := portaudio.OpenDefaultStream(0, 2, float64(sampleRate), portaudioFrames, func(out []float32) {
		source.Process(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := s.Start(); err != nil {
		s.Close()
		portaudio.Terminate()
		return nil, err
	}
	return &portaudioOutput{stream: s}, nil
}

func (o *portaudioOutput) Close() error {
	if err := o.stream.Stop(); err != nil {
		return err
	}
	if err := o.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
