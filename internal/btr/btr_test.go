package btr

import (
	"math"
	"testing"

	"github.com/canline/slcan/internal/canframe"
)

func TestIndexToBTR0BTR1RoundTrip(t *testing.T) {
	indices := []int{
		canframe.Index1M, canframe.Index800K, canframe.Index500K, canframe.Index250K,
		canframe.Index125K, canframe.Index100K, canframe.Index50K, canframe.Index20K, canframe.Index10K,
	}
	for _, idx := range indices {
		reg, err := IndexToBTR0BTR1(idx)
		if err != nil {
			t.Fatalf("IndexToBTR0BTR1(%d): %v", idx, err)
		}
		got, err := BTR0BTR1ToIndex(reg)
		if err != nil {
			t.Fatalf("BTR0BTR1ToIndex(%#x): %v", reg, err)
		}
		if got != idx {
			t.Fatalf("round-trip index mismatch: got %d want %d", got, idx)
		}
	}
}

// TestIndexToBitrateRoundTrip exercises the public bitrate-level round trip
// (index -> structured bitrate -> BTR0BTR1 -> index), which unlike
// TestIndexToBTR0BTR1RoundTrip actually decomposes and repacks each preset's
// {BRP,TSEG1,TSEG2,SJW,SAM} fields instead of comparing a register to itself.
func TestIndexToBitrateRoundTrip(t *testing.T) {
	indices := []int{
		canframe.Index1M, canframe.Index800K, canframe.Index500K, canframe.Index250K,
		canframe.Index125K, canframe.Index100K, canframe.Index50K, canframe.Index20K, canframe.Index10K,
	}
	for _, idx := range indices {
		br, err := IndexToBitrate(idx)
		if err != nil {
			t.Fatalf("IndexToBitrate(%d): %v", idx, err)
		}
		got, err := BitrateToIndex(br)
		if err != nil {
			t.Fatalf("BitrateToIndex(%+v): %v", br, err)
		}
		if got != idx {
			t.Fatalf("round-trip index mismatch: got %d want %d (bitrate %+v)", got, idx, br)
		}
	}
}

func TestIndexToBTR0BTR1Invalid(t *testing.T) {
	if _, err := IndexToBTR0BTR1(-9); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if _, err := IndexToBTR0BTR1(1); err == nil {
		t.Fatal("expected error for index > 0")
	}
}

func TestBitrateBTR0BTR1RoundTrip(t *testing.T) {
	br := canframe.Bitrate{FClock: canframe.SJA1000Clock, BRP: 4, TSeg1: 7, TSeg2: 6, SJW: 1, SAM: 0}
	reg, err := BitrateToBTR0BTR1(br)
	if err != nil {
		t.Fatalf("BitrateToBTR0BTR1: %v", err)
	}
	back := BTR0BTR1ToBitrate(reg)
	if back != br {
		t.Fatalf("round trip mismatch: got %+v want %+v", back, br)
	}
}

func TestBitrateToBTR0BTR1BoundaryValues(t *testing.T) {
	cases := []struct {
		name string
		br   canframe.Bitrate
		ok   bool
	}{
		{"min fields", canframe.Bitrate{BRP: 1, TSeg1: 1, TSeg2: 1, SJW: 1, SAM: 0}, true},
		{"max fields", canframe.Bitrate{BRP: canframe.SJA1000MaxBRP, TSeg1: canframe.SJA1000MaxTSeg1, TSeg2: canframe.SJA1000MaxTSeg2, SJW: canframe.SJA1000MaxSJW, SAM: 1}, true},
		{"brp zero", canframe.Bitrate{BRP: 0, TSeg1: 1, TSeg2: 1, SJW: 1}, false},
		{"brp over", canframe.Bitrate{BRP: canframe.SJA1000MaxBRP + 1, TSeg1: 1, TSeg2: 1, SJW: 1}, false},
		{"tseg1 over", canframe.Bitrate{BRP: 1, TSeg1: canframe.SJA1000MaxTSeg1 + 1, TSeg2: 1, SJW: 1}, false},
		{"sam over", canframe.Bitrate{BRP: 1, TSeg1: 1, TSeg2: 1, SJW: 1, SAM: 2}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := BitrateToBTR0BTR1(c.br)
			if (err == nil) != c.ok {
				t.Fatalf("BitrateToBTR0BTR1(%+v): err=%v, want ok=%v", c.br, err, c.ok)
			}
		})
	}
}

func TestToSpeed(t *testing.T) {
	br := canframe.Bitrate{FClock: 8_000_000, BRP: 1, TSeg1: 5, TSeg2: 2, SJW: 1}
	sp := ToSpeed(br)
	if math.Abs(sp.Speed-1_000_000) > 1 {
		t.Fatalf("expected ~1Mbit/s, got %f", sp.Speed)
	}
	if sp.SamplePoint <= 0 || sp.SamplePoint >= 1 {
		t.Fatalf("sample point out of range: %f", sp.SamplePoint)
	}
	zeroBRP := canframe.Bitrate{FClock: 8_000_000, BRP: 0, TSeg1: 1, TSeg2: 1}
	if !math.IsInf(ToSpeed(zeroBRP).Speed, 1) {
		t.Fatal("expected +Inf speed for zero BRP")
	}
}

func TestStringToBitrateRoundTrip(t *testing.T) {
	s := "f_clock=8000000,nom_brp=4,nom_tseg1=7,nom_tseg2=6,nom_sjw=1,nom_sam=0"
	br, err := StringToBitrate(s)
	if err != nil {
		t.Fatalf("StringToBitrate: %v", err)
	}
	back := BitrateToString(br)
	br2, err := StringToBitrate(back)
	if err != nil {
		t.Fatalf("StringToBitrate(round-trip): %v", err)
	}
	if br != br2 {
		t.Fatalf("round trip mismatch: %+v != %+v", br, br2)
	}
}

func TestStringToBitrateMHz(t *testing.T) {
	br, err := StringToBitrate("f_clock_mhz=8,nom_brp=1,nom_tseg1=5,nom_tseg2=2,nom_sjw=1")
	if err != nil {
		t.Fatalf("StringToBitrate: %v", err)
	}
	if br.FClock != 8_000_000 {
		t.Fatalf("expected 8MHz, got %d", br.FClock)
	}
}

func TestStringToBitrateErrors(t *testing.T) {
	cases := []string{
		"",
		"nom_brp=4",                           // missing f_clock
		"f_clock=8000000,bad",                 // malformed pair
		"f_clock=8000000,nom_brp=4,nom_brp=5", // duplicate key
		"f_clock=8000000,unknown=1",
		"f_clock=8000000,nom_sam=2",
	}
	for _, s := range cases {
		if _, err := StringToBitrate(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestCompare(t *testing.T) {
	slow, _ := IndexToBitrate(canframe.Index10K)
	fast, _ := IndexToBitrate(canframe.Index1M)
	if Compare(slow, fast, false) >= 0 {
		t.Fatal("expected slow < fast")
	}
	if Compare(fast, fast, false) != 0 {
		t.Fatal("expected equal bitrates to compare as 0")
	}
}
