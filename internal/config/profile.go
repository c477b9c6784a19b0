package config

import (
	"gopkg.in/ini.v1"

	"github.com/canline/slcan/internal/canframe"
)

// Profile is one named bit-rate entry from a profile file, keyed by section
// name (e.g. "[workshop-bus]").
type Profile struct {
	Name    string
	Bitrate canframe.Bitrate
}

// LoadProfiles reads an INI file of named structured bit-rate sections:
//
//	[workshop-bus]
//	f_clock = 8000000
//	nom_brp = 2
//	nom_tseg1 = 7
//	nom_tseg2 = 6
//	nom_sjw = 1
//	nom_sam = 0
//
// Every key maps directly onto a canframe.Bitrate field; missing keys
// default to zero. The DEFAULT section (if present) is skipped.
func LoadProfiles(path string) ([]Profile, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	var out []Profile
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		ib := &iniBitrate{}
		if err := section.MapTo(ib); err != nil {
			return nil, err
		}
		br := canframe.Bitrate{}
		br.FClock = ib.FClock
		br.BRP = ib.BRP
		br.TSeg1 = ib.TSeg1
		br.TSeg2 = ib.TSeg2
		br.SJW = ib.SJW
		br.SAM = ib.SAM
		out = append(out, Profile{Name: section.Name(), Bitrate: br})
	}
	return out, nil
}

// iniBitrate mirrors canframe.Bitrate's fields with ini struct tags.
type iniBitrate struct {
	FClock uint32 `ini:"f_clock"`
	BRP    uint16 `ini:"nom_brp"`
	TSeg1  uint16 `ini:"nom_tseg1"`
	TSeg2  uint16 `ini:"nom_tseg2"`
	SJW    uint16 `ini:"nom_sjw"`
	SAM    uint8  `ini:"nom_sam"`
}
