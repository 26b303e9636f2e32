package instrument_test

import (
	"testing"

	"github.com/nightjar-organ/virga/harmonic"
	"github.com/nightjar-organ/virga/instrument"
)

const yamlInstrument = `
fbase: 440
cachedir: /tmp/virga-cache
divisions:
  - section: 0
    mask: 1
    swell: 0.8
    ranks:
      - n0: 36
        n1: 96
        pan: L
        delay: 5
`

const jsonInstrument = `{
  "fbase": 440,
  "divisions": [
    {"section": 1, "mask": 2, "ranks": [{"n0": 36, "n1": 96, "pan": "R"}]}
  ]
}`

func TestParseYAML(t *testing.T) {
	f, err := instrument.Parse([]byte(yamlInstrument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Fbase != 440 {
		t.Fatalf("Fbase = %v, want 440", f.Fbase)
	}
	if len(f.Divisions) != 1 || len(f.Divisions[0].Ranks) != 1 {
		t.Fatalf("unexpected division/rank shape: %+v", f.Divisions)
	}
	if f.Divisions[0].Ranks[0].PanChar != "L" {
		t.Fatalf("PanChar = %q, want L", f.Divisions[0].Ranks[0].PanChar)
	}
}

func TestParseJSON(t *testing.T) {
	f, err := instrument.Parse([]byte(jsonInstrument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Divisions[0].Section != 1 || f.Divisions[0].DefaultMask != 2 {
		t.Fatalf("unexpected division: %+v", f.Divisions[0])
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := instrument.Parse([]byte("not: [valid : yaml::: json")); err == nil {
		t.Fatal("expected an error parsing garbage input")
	}
}

func TestToPatchFillsEqualTemperamentWhenScaleOmitted(t *testing.T) {
	f, err := instrument.Parse([]byte(yamlInstrument))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	patch, err := f.ToPatch(44100)
	if err != nil {
		t.Fatalf("ToPatch: %v", err)
	}
	if patch.Scale[0] != 1.0 {
		t.Fatalf("Scale[0] = %v, want 1.0 (equal temperament root)", patch.Scale[0])
	}
	if patch.Fsamp != 44100 {
		t.Fatalf("Fsamp = %v, want 44100", patch.Fsamp)
	}
	if patch.CacheDir != "/tmp/virga-cache" {
		t.Fatalf("CacheDir = %q, want /tmp/virga-cache", patch.CacheDir)
	}
	rd := patch.Divisions[0].Ranks[0]
	if rd.Pan != harmonic.PanLeft {
		t.Fatalf("Pan = %v, want PanLeft", rd.Pan)
	}
	if rd.DelayMs != 5 {
		t.Fatalf("DelayMs = %d, want 5", rd.DelayMs)
	}
}

func TestToPatchRejectsZeroFbase(t *testing.T) {
	f := &instrument.File{}
	if _, err := f.ToPatch(44100); err == nil {
		t.Fatal("expected an error when fbase is unset")
	}
}

func TestToPatchRejectsUnknownPan(t *testing.T) {
	f := &instrument.File{
		Fbase: 440,
		Divisions: []instrument.DivisionFile{
			{Ranks: []instrument.RankFile{{PanChar: "Q"}}},
		},
	}
	if _, err := f.ToPatch(44100); err == nil {
		t.Fatal("expected an error for an unrecognized pan character")
	}
}
