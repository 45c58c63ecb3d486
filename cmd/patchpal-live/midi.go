package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/patchpal-go/internal/midiin"
)

func midiInputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// openMIDI connects the named input, or the first one for "first", to h.
func openMIDI(name string, h *midiin.Handler) (func(), error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("open MIDI driver: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, err
	}
	var found drivers.In
	for _, in := range ins {
		if name == "first" || in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		drv.Close()
		return nil, fmt.Errorf("MIDI input %q not found", name)
	}
	if err := found.Open(); err != nil {
		drv.Close()
		return nil, err
	}
	stop, err := midi.ListenTo(found, h.Handle, midi.HandleError(func(listenErr error) {
		logger.Warn("MIDI listener error", "device", found.String(), "err", listenErr)
	}))
	if err != nil {
		_ = found.Close()
		drv.Close()
		return nil, err
	}
	logger.Info("MIDI input connected", "device", found.String())
	return func() {
		stop()
		_ = found.Close()
		drv.Close()
		logger.Info("MIDI input closed", "device", found.String())
	}, nil
}
