// Package midiin turns incoming MIDI messages into engine calls.
package midiin

import (
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/patchpal-go/patch"
)

// Controller numbers the handler reacts to.
const (
	CCVolume      = 7
	CCAllNotesOff = 123
)

// Omni accepts messages on every channel.
const Omni = -1

// Target is what MIDI input drives. *patchpal.Engine satisfies it. Notes
// are played with the target's current patch.
type Target interface {
	NoteOn(note int, velocity float64, p *patch.Patch) error
	NoteOff(note int) error
	SetMasterVolume(v float64)
	AllNotesOff() error
}

// Handler dispatches messages to a Target. Its Handle method matches the
// callback signature of midi.ListenTo.
type Handler struct {
	target  Target
	channel int
	logger  *slog.Logger
}

// NewHandler creates a handler listening on channel (0-15) or Omni.
func NewHandler(target Target, channel int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{target: target, channel: channel, logger: logger}
}

func (h *Handler) accepts(ch uint8) bool {
	return h.channel == Omni || int(ch) == h.channel
}

// Handle processes one message.
func (h *Handler) Handle(msg midi.Message, timestampms int32) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if !h.accepts(ch) {
			return
		}
		if err := h.target.NoteOn(int(key), float64(vel)/127, nil); err != nil {
			h.logger.Warn("note on dropped", "key", key, "err", err)
		}
	case msg.GetNoteEnd(&ch, &key):
		if !h.accepts(ch) {
			return
		}
		if err := h.target.NoteOff(int(key)); err != nil {
			h.logger.Warn("note off dropped", "key", key, "err", err)
		}
	case msg.GetControlChange(&ch, &cc, &val):
		if !h.accepts(ch) {
			return
		}
		switch cc {
		case CCVolume:
			h.target.SetMasterVolume(float64(val) / 127)
		case CCAllNotesOff:
			if err := h.target.AllNotesOff(); err != nil {
				h.logger.Warn("all notes off incomplete", "err", err)
			}
		default:
			h.logger.Debug("unhandled controller", "cc", cc, "value", val)
		}
	default:
		h.logger.Debug("unhandled MIDI message", "msg", msg.String(), "ts", timestampms)
	}
}
