package engine

import (
	"testing"

	"github.com/canline/slcan/internal/canframe"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	cases := []canframe.Frame{
		{ID: 0x000, DLC: 0},
		{ID: 0x7FF, DLC: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{ID: 0x1FFFFFFF, Extended: true, DLC: 8, Data: [8]byte{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA, 0x99, 0x88}},
		{ID: 0x123, Extended: true, DLC: 3, Data: [8]byte{0xDE, 0xAD, 0xBE}},
		{ID: 0x5, Remote: true, DLC: 4},
		{ID: 0x1ABCDE, Extended: true, Remote: true, DLC: 0},
	}
	for _, fr := range cases {
		enc, err := EncodeFrame(fr)
		if err != nil {
			t.Fatalf("EncodeFrame(%+v): %v", fr, err)
		}
		got, err := DecodeFrame(enc)
		if err != nil {
			t.Fatalf("DecodeFrame(%q): %v", enc, err)
		}
		got.Stamp = fr.Stamp
		if got != fr {
			t.Fatalf("round trip mismatch: got %+v want %+v (wire %q)", got, fr, enc)
		}
	}
}

func TestEncodeFrameRejectsOutOfRange(t *testing.T) {
	if _, err := EncodeFrame(canframe.Frame{ID: canframe.MaxStandardID + 1}); err == nil {
		t.Fatal("expected error for standard ID overflow")
	}
	if _, err := EncodeFrame(canframe.Frame{ID: canframe.MaxExtendedID + 1, Extended: true}); err == nil {
		t.Fatal("expected error for extended ID overflow")
	}
	if _, err := EncodeFrame(canframe.Frame{DLC: 9}); err == nil {
		t.Fatal("expected error for DLC > 8")
	}
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("t"),
		[]byte("x1238"),   // unknown letter
		[]byte("t12345"),  // DLC 4 declared but only one payload hex digit present
		[]byte("t1238AA"), // DLC 8 declared but only one data byte present
		[]byte("r123100"), // remote frame must not carry payload bytes
		[]byte("T7FFFFFFF8" + "0102030405060708" + "0"), // extended ID 0x7FFFFFFF exceeds 29 bits
	}
	for _, line := range cases {
		if _, err := DecodeFrame(line); err == nil {
			t.Fatalf("expected error decoding %q", line)
		}
	}
}

func TestPutHexParseHexRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xF, 0x1F, 0xABCDEF, 0x1FFFFFFF} {
		for _, nibbles := range []int{2, 3, 8} {
			enc := putHex(nil, v, nibbles)
			got, ok := parseHex(enc)
			if !ok {
				t.Fatalf("parseHex(%q) failed", enc)
			}
			mask := uint32(1)<<(4*uint(nibbles)) - 1
			if got != v&mask {
				t.Fatalf("putHex/parseHex mismatch: v=%#x nibbles=%d got=%#x", v, nibbles, got)
			}
		}
	}
}

func TestParseHexRejectsNonHex(t *testing.T) {
	if _, ok := parseHex([]byte("1G")); ok {
		t.Fatal("expected parseHex to reject non-hex digit")
	}
}
