// Package btr implements the SJA1000 bit-timing conversions: CiA index,
// packed BTR0BTR1 register, structured bit-rate record, bus speed and
// sample point, and the comma-separated key=value configuration string.
//
// Grounded on the reference SJA1000 preset table and conversion formulas;
// every function here is pure and total (errors are returned, never
// panicked).
package btr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/canline/slcan/internal/canframe"
)

// presets mirrors the reference CANBTR_Defaults table: raw register values
// and their decomposed {BRP,TSEG1,TSEG2,SJW,SAM} fields at an 8 MHz clock.
// The table carries all ten hardware presets (1 Mbit/s down to 5 kbit/s);
// only nine of them (1M..10K) have an assigned CiA index, matching §3/§4.4 —
// the 5K row is reachable only through the raw-register conversions.
var presets = []struct {
	idx      int
	hasIndex bool
	reg      uint16
	brp      uint16
	ts1      uint16
	ts2      uint16
	sjw      uint16
	sam      uint8
}{
	{canframe.Index1M, true, 0x0014, 1, 5, 2, 1, 0},
	{canframe.Index800K, true, 0x0016, 1, 7, 2, 1, 0},
	{canframe.Index500K, true, 0x001C, 1, 13, 2, 1, 0},
	{canframe.Index250K, true, 0x011C, 2, 13, 2, 1, 0},
	{canframe.Index125K, true, 0x031C, 4, 13, 2, 1, 0},
	{canframe.Index100K, true, 0x441C, 5, 13, 2, 2, 0},
	{canframe.Index50K, true, 0x491C, 10, 13, 2, 2, 0},
	{canframe.Index20K, true, 0x581C, 25, 13, 2, 2, 0},
	{canframe.Index10K, true, 0x711C, 50, 13, 2, 2, 0},
	{0, false, 0x7F7F, 64, 16, 8, 2, 0}, // 5 kbit/s, register-only
}

func presetByIndex(index int) (canframe.Bitrate, canframe.BTR0BTR1, bool) {
	for _, p := range presets {
		if p.hasIndex && p.idx == index {
			return canframe.Bitrate{
				FClock: canframe.SJA1000Clock,
				BRP:    p.brp,
				TSeg1:  p.ts1,
				TSeg2:  p.ts2,
				SJW:    p.sjw,
				SAM:    p.sam,
			}, canframe.BTR0BTR1(p.reg), true
		}
	}
	return canframe.Bitrate{}, 0, false
}

// IndexToBitrate looks up one of the nine SJA1000 presets that carry a CiA
// index.
func IndexToBitrate(index int) (canframe.Bitrate, error) {
	br, _, ok := presetByIndex(index)
	if !ok {
		return canframe.Bitrate{}, canframe.ErrInvalidBaudrate
	}
	return br, nil
}

// IndexToBTR0BTR1 looks up the packed register for a CiA index.
func IndexToBTR0BTR1(index int) (canframe.BTR0BTR1, error) {
	_, reg, ok := presetByIndex(index)
	if !ok {
		return 0, canframe.ErrInvalidBaudrate
	}
	return reg, nil
}

// BTR0BTR1ToIndex matches a packed register against the preset table.
func BTR0BTR1ToIndex(reg canframe.BTR0BTR1) (int, error) {
	for _, p := range presets {
		if p.hasIndex && canframe.BTR0BTR1(p.reg) == reg {
			return p.idx, nil
		}
	}
	return 0, canframe.ErrInvalidBaudrate
}

// BitrateToIndex round-trips a structured bit-rate through BTR0BTR1 and
// matches the result against the preset table.
func BitrateToIndex(br canframe.Bitrate) (int, error) {
	reg, err := BitrateToBTR0BTR1(br)
	if err != nil {
		return 0, err
	}
	return BTR0BTR1ToIndex(reg)
}

// BitrateToBTR0BTR1 range-checks each field against the SJA1000 sub-range
// then packs SJW(2)|BRP(6)|SAM(1)|TSEG2(3)|TSEG1(4), biasing every field
// except SAM by -1.
func BitrateToBTR0BTR1(br canframe.Bitrate) (canframe.BTR0BTR1, error) {
	if br.BRP < 1 || br.BRP > canframe.SJA1000MaxBRP {
		return 0, canframe.ErrInvalidBaudrate
	}
	if br.TSeg1 < 1 || br.TSeg1 > canframe.SJA1000MaxTSeg1 {
		return 0, canframe.ErrInvalidBaudrate
	}
	if br.TSeg2 < 1 || br.TSeg2 > canframe.SJA1000MaxTSeg2 {
		return 0, canframe.ErrInvalidBaudrate
	}
	if br.SJW < 1 || br.SJW > canframe.SJA1000MaxSJW {
		return 0, canframe.ErrInvalidBaudrate
	}
	if br.SAM > 1 {
		return 0, canframe.ErrInvalidBaudrate
	}
	btr0 := uint16(br.SJW-1)<<6 | uint16(br.BRP-1)
	btr1 := uint16(br.SAM)<<7 | uint16(br.TSeg2-1)<<4 | uint16(br.TSeg1-1)
	return canframe.BTR0BTR1(btr0<<8 | btr1), nil
}

// BTR0BTR1ToBitrate unpacks a register into a structured bit-rate at 8 MHz.
func BTR0BTR1ToBitrate(reg canframe.BTR0BTR1) canframe.Bitrate {
	btr0 := byte(reg >> 8)
	btr1 := byte(reg)
	return canframe.Bitrate{
		FClock: canframe.SJA1000Clock,
		SJW:    uint16(btr0>>6) + 1,
		BRP:    uint16(btr0&0x3F) + 1,
		SAM:    (btr1 >> 7) & 1,
		TSeg2:  uint16((btr1>>4)&0x7) + 1,
		TSeg1:  uint16(btr1&0xF) + 1,
	}
}

// ToSpeed computes transmission rate and sample point.
// speed = f_clock / (BRP * (1 + TSEG1 + TSEG2)); BRP == 0 yields +Inf.
func ToSpeed(br canframe.Bitrate) canframe.Speed {
	denom := 1 + br.TSeg1 + br.TSeg2
	var speed float64
	if br.BRP == 0 {
		speed = inf()
	} else {
		speed = float64(br.FClock) / (float64(br.BRP) * float64(denom))
	}
	sp := float64(1+br.TSeg1) / float64(denom)
	return canframe.Speed{Speed: speed, SamplePoint: sp}
}

func inf() float64 {
	var zero float64
	return 1 / zero
}

// Compare normalises both bit-rates to integer transmission rates and
// returns sign(rate1 - rate2); ties are broken on sample point when
// compareSP is set.
func Compare(a, b canframe.Bitrate, compareSP bool) int {
	sa, sb := ToSpeed(a), ToSpeed(b)
	ra, rb := int64(sa.Speed), int64(sb.Speed)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	if !compareSP {
		return 0
	}
	switch {
	case sa.SamplePoint < sb.SamplePoint:
		return -1
	case sa.SamplePoint > sb.SamplePoint:
		return 1
	default:
		return 0
	}
}

// stringKeys is the canonical emission order for BitrateToString.
var stringKeys = []string{"f_clock", "nom_brp", "nom_tseg1", "nom_tseg2", "nom_sjw", "nom_sam"}

// StringToBitrate parses a comma-separated key=value configuration string
// over {f_clock, f_clock_mhz, nom_brp, nom_tseg1, nom_tseg2, nom_sjw,
// nom_sam}. Each key may appear at most once; whitespace around keys, '=',
// values and commas is tolerated; values are unsigned decimal integers;
// unknown keys or out-of-range values fail. Missing keys default to zero, so
// f_clock (or f_clock_mhz) must be present and >= 1.
func StringToBitrate(s string) (canframe.Bitrate, error) {
	seen := map[string]bool{}
	var br canframe.Bitrate
	var fClockMHz uint64
	haveMHz := false
	limits := map[string]uint64{"f_clock": 0xFFFFFFFF, "f_clock_mhz": 0xFFFFFFFF / 1_000_000,
		"nom_brp": 1024, "nom_tseg1": 256, "nom_tseg2": 128, "nom_sjw": 128}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return canframe.Bitrate{}, canframe.ErrInvalidParam
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if seen[key] {
			return canframe.Bitrate{}, canframe.ErrInvalidParam
		}
		seen[key] = true
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return canframe.Bitrate{}, canframe.ErrInvalidParam
		}
		if m, ok := limits[key]; ok && n > m {
			return canframe.Bitrate{}, canframe.ErrInvalidParam
		}
		switch key {
		case "f_clock":
			br.FClock = uint32(n)
		case "f_clock_mhz":
			fClockMHz = n
			haveMHz = true
		case "nom_brp":
			br.BRP = uint16(n)
		case "nom_tseg1":
			br.TSeg1 = uint16(n)
		case "nom_tseg2":
			br.TSeg2 = uint16(n)
		case "nom_sjw":
			br.SJW = uint16(n)
		case "nom_sam":
			if n > 1 {
				return canframe.Bitrate{}, canframe.ErrInvalidParam
			}
			br.SAM = uint8(n)
		default:
			return canframe.Bitrate{}, canframe.ErrInvalidParam
		}
	}
	if haveMHz {
		br.FClock = uint32(fClockMHz * 1_000_000)
	}
	if br.FClock < 1 {
		return canframe.Bitrate{}, canframe.ErrInvalidParam
	}
	return br, nil
}

// BitrateToString renders a structured bit-rate as a canonical-order
// key=value string; only non-zero fields are emitted except f_clock, which
// is always present.
func BitrateToString(br canframe.Bitrate) string {
	vals := map[string]uint64{
		"f_clock":   uint64(br.FClock),
		"nom_brp":   uint64(br.BRP),
		"nom_tseg1": uint64(br.TSeg1),
		"nom_tseg2": uint64(br.TSeg2),
		"nom_sjw":   uint64(br.SJW),
		"nom_sam":   uint64(br.SAM),
	}
	keys := make([]string, 0, len(stringKeys))
	for _, k := range stringKeys {
		if k == "f_clock" || vals[k] != 0 {
			keys = append(keys, k)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		// stringKeys is already canonical order; SliceStable keeps it so this
		// is a no-op sort used only to document that order is significant.
		return indexOf(keys[i]) < indexOf(keys[j])
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, vals[k]))
	}
	return strings.Join(parts, ",")
}

func indexOf(k string) int {
	for i, s := range stringKeys {
		if s == k {
			return i
		}
	}
	return -1
}
