// Package wireframe is the gateway's wire-interchange CAN frame: the type
// exchanged between TCP clients (via the cannelloni-style codec in
// internal/cnl) and the hub, independent of the SLCAN engine's canonical
// frame representation in internal/canframe.
//
// Grounded on the teacher's internal/can package; renamed for this driver's
// domain and extended with conversions to/from internal/canframe.Frame at
// the gateway boundary.
package wireframe

import "github.com/canline/slcan/internal/canframe"

// SocketCAN flag bits for can_id (same values as <linux/can.h>).
const (
	EFFFlag = 0x80000000
	RTRFlag = 0x40000000
	ERRFlag = 0x20000000
	SFFMask = 0x7FF
	EFFMask = 0x1FFFFFFF
)

// Frame is the gateway's wire-interchange CAN frame. CANID carries EFF/RTR/
// ERR flags in its upper bits like SocketCAN; only the first Len bytes of
// Data are valid.
type Frame struct {
	CANID uint32
	Len   uint8
	Data  [64]byte
}

// CopyShallow returns an independent copy of f.
func (f Frame) CopyShallow() Frame {
	var g Frame
	g.CANID, g.Len = f.CANID, f.Len
	copy(g.Data[:], f.Data[:])
	return g
}

// FromCANFrame converts a driver-canonical frame into the gateway's wire
// representation, packing Extended/Remote into CANID's flag bits.
func FromCANFrame(fr canframe.Frame) Frame {
	id := fr.ID
	if fr.Extended {
		id |= EFFFlag
	}
	if fr.Remote {
		id |= RTRFlag
	}
	if fr.Status {
		id |= ERRFlag
	}
	var w Frame
	w.CANID = id
	w.Len = fr.DLC
	copy(w.Data[:8], fr.Data[:])
	return w
}

// ToCANFrame inverts FromCANFrame, unpacking the flag bits back into the
// driver-canonical frame.
func ToCANFrame(w Frame) canframe.Frame {
	var fr canframe.Frame
	fr.Extended = w.CANID&EFFFlag != 0
	fr.Remote = w.CANID&RTRFlag != 0
	fr.Status = w.CANID&ERRFlag != 0
	if fr.Extended {
		fr.ID = w.CANID & EFFMask
	} else {
		fr.ID = w.CANID & SFFMask
	}
	dlc := w.Len
	if dlc > 8 {
		dlc = 8
	}
	fr.DLC = dlc
	copy(fr.Data[:], w.Data[:8])
	return fr
}
