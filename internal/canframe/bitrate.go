package canframe

// Bitrate is the structured bit-timing record, either taken from one of the
// SJA1000 presets or configured directly; it does not record which.
type Bitrate struct {
	FClock  uint32 // nominal clock frequency, Hz
	BRP     uint16 // 1..1024 generally, 1..64 on the SJA1000 sub-range
	TSeg1   uint16 // 1..256 / 1..16
	TSeg2   uint16 // 1..128 / 1..8
	SJW     uint16 // 1..128 / 1..4
	SAM     uint8  // 0 or 1
}

// IndexNone is an index value outside the CiA preset range.
const IndexNone = 1 // not a valid CiA index (those are <= 0)

// CiA 301 predefined bit-rate indices, 0 (1 Mbit/s) down to -8 (10 kbit/s).
const (
	Index1M    = 0
	Index800K  = -1
	Index500K  = -2
	Index250K  = -3
	Index125K  = -4
	Index100K  = -5
	Index50K   = -6
	Index20K   = -7
	Index10K   = -8
)

// SJA1000 field ranges (the sub-range on which conversion is lossless).
const (
	SJA1000MaxBRP   = 64
	SJA1000MaxTSeg1 = 16
	SJA1000MaxTSeg2 = 8
	SJA1000MaxSJW   = 4
	SJA1000Clock    = 8_000_000
)

// BTR0BTR1 is the packed 16-bit SJA1000 bit-timing register:
// SJW(2) | BRP(6) | SAM(1) | TSEG2(3) | TSEG1(4), every field biased by -1
// except SAM.
type BTR0BTR1 uint16

// Speed is the result of converting a Bitrate to a transmission rate plus
// sample point.
type Speed struct {
	Speed      float64 // bits per second; +Inf if BRP == 0
	SamplePoint float64 // fraction of the bit time, 0..1
}
