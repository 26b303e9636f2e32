// Package instrument marshals instrument files: the YAML (or legacy JSON)
// description of an organ's divisions, their ranks, and the temperament
// they're tuned against, read at startup into a control.Patch.
package instrument

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nightjar-organ/virga/control"
	"github.com/nightjar-organ/virga/harmonic"
)

// File is the on-disk shape of an instrument file; it decodes into a
// control.Patch via ToPatch.
type File struct {
	Fbase     float32        `yaml:"fbase" json:"fbase"`
	Scale     [12]float32    `yaml:"scale" json:"scale"`
	CacheDir  string         `yaml:"cachedir" json:"cachedir"`
	Divisions []DivisionFile `yaml:"divisions" json:"divisions"`
}

// DivisionFile is one division entry in an instrument file.
type DivisionFile struct {
	Section     int         `yaml:"section" json:"section"`
	DefaultMask byte        `yaml:"mask" json:"mask"`
	Swell       float32     `yaml:"swell" json:"swell"`
	TremFreq    float32     `yaml:"tremfreq" json:"tremfreq"`
	TremDepth   float32     `yaml:"tremdepth" json:"tremdepth"`
	Ranks       []RankFile  `yaml:"ranks" json:"ranks"`
}

// RankFile is one rank entry: an embedded Addsynth voicing plus its
// placement within the division.
type RankFile struct {
	harmonic.Addsynth `yaml:",inline" json:",inline"`
	PanChar           string `yaml:"pan" json:"pan"`
	DelayMs           int    `yaml:"delay" json:"delay"`
}

// equalTemperament is the 12-tone equal-tempered scale used when an
// instrument file omits Scale.
var equalTemperament = [12]float32{
	1.0, 1.059463, 1.122462, 1.189207, 1.259921, 1.334840,
	1.414214, 1.498307, 1.587401, 1.681793, 1.781797, 1.887749,
}

// Parse decodes an instrument file from data, trying JSON first (so a
// plain .json file round-trips without touching the YAML parser) and
// falling back to YAML otherwise.
func Parse(data []byte) (*File, error) {
	var f File
	errJSON := json.Unmarshal(data, &f)
	if errJSON == nil {
		return &f, nil
	}
	if errYAML := yaml.Unmarshal(data, &f); errYAML != nil {
		return nil, fmt.Errorf("instrument: could not parse as json (%v) or yaml (%v)", errJSON, errYAML)
	}
	return &f, nil
}

// ToPatch converts a parsed File into a control.Patch ready for
// control.NewModel, resolving pan characters and filling in the equal
// temperament scale when Scale is the zero value.
func (f *File) ToPatch(fsamp float32) (control.Patch, error) {
	if f.Fbase <= 0 {
		return control.Patch{}, errors.New("instrument: fbase must be > 0")
	}
	scale := f.Scale
	if scale == ([12]float32{}) {
		scale = equalTemperament
	}
	p := control.Patch{
		Fsamp:    fsamp,
		Fbase:    f.Fbase,
		Scale:    scale,
		CacheDir: f.CacheDir,
	}
	for _, dd := range f.Divisions {
		div := control.DivisionDef{
			Section:     dd.Section,
			DefaultMask: dd.DefaultMask,
			Swell:       dd.Swell,
			TremFreq:    dd.TremFreq,
			TremDepth:   dd.TremDepth,
		}
		for i := range dd.Ranks {
			rf := dd.Ranks[i]
			pan, err := parsePan(rf.PanChar)
			if err != nil {
				return control.Patch{}, err
			}
			as := rf.Addsynth
			div.Ranks = append(div.Ranks, control.RankDef{
				Addsynth: &as,
				Pan:      pan,
				DelayMs:  rf.DelayMs,
			})
		}
		p.Divisions = append(p.Divisions, div)
	}
	return p, nil
}

func parsePan(s string) (harmonic.Pan, error) {
	if s == "" {
		return harmonic.PanWide, nil
	}
	switch s[0] {
	case 'L', 'l':
		return harmonic.PanLeft, nil
	case 'C', 'c':
		return harmonic.PanCenter, nil
	case 'R', 'r':
		return harmonic.PanRight, nil
	case 'W', 'w':
		return harmonic.PanWide, nil
	}
	return 0, fmt.Errorf("instrument: unknown pan %q", s)
}
