package config

import (
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.SampleRate != DefaultSampleRate || c.Backend != DefaultBackend || c.Polyphony != DefaultPolyphony || c.StealPolicy != DefaultStealPolicy {
		t.Fatalf("defaults = %+v", c)
	}
	if c.Volume() != DefaultMasterVolume {
		t.Fatalf("volume = %v, want %v", c.Volume(), DefaultMasterVolume)
	}
}

func TestLoadFile(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "live.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.SampleRate != 44100 || c.Backend != "oto" || c.Polyphony != 16 || c.StealPolicy != "quietest" {
		t.Fatalf("got %+v", c)
	}
	if c.Volume() != 0.6 || c.Seed != 7 || c.MIDIPort != "Launchkey" {
		t.Fatalf("got volume %v seed %d port %q", c.Volume(), c.Seed, c.MIDIPort)
	}
}

func TestZeroVolumeIsKept(t *testing.T) {
	c, err := Parse([]byte("masterVolume: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Volume() != 0 {
		t.Fatalf("volume = %v, want explicit 0", c.Volume())
	}
}

func TestParseErrors(t *testing.T) {
	for _, doc := range []string{
		"sampleRate: -1\n",
		"polyphony: -4\n",
		"sampleRate: [\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%q) succeeded", doc)
		}
	}
	if _, err := Load(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
