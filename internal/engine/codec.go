// Package engine implements the SLCAN protocol engine (C6): the ASCII frame
// codec, the byte-level reception state machine that demultiplexes frame
// indications from command responses, and the request/response
// synchroniser. It owns the serial port (C1), message queue (C2) and
// response buffer (C3) for one channel.
//
// Grounded on the reference reception_loop/send_command/encode_message/
// decode_message routines (Sources/SLCAN/slcan.c).
package engine

import (
	"github.com/canline/slcan/internal/canframe"
)

const hexDigits = "0123456789ABCDEF"

func hexNibble(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	default:
		return 0, false
	}
}

func putHex(dst []byte, v uint32, nibbles int) []byte {
	for i := nibbles - 1; i >= 0; i-- {
		dst = append(dst, hexDigits[(v>>(4*uint(i)))&0xF])
	}
	return dst
}

func parseHex(src []byte) (uint32, bool) {
	var v uint32
	for _, b := range src {
		n, ok := hexNibble(b)
		if !ok {
			return 0, false
		}
		v = v<<4 | uint32(n)
	}
	return v, true
}

// EncodeFrame builds the ASCII command line for transmitting fr (without the
// terminating CR, which the caller appends once the full request is known).
func EncodeFrame(fr canframe.Frame) ([]byte, error) {
	if fr.DLC > 8 {
		return nil, canframe.ErrInvalidParam
	}
	var letter byte
	var idNibbles int
	if fr.Extended {
		idNibbles = 8
		if fr.Remote {
			letter = 'R'
		} else {
			letter = 'T'
		}
		if fr.ID > canframe.MaxExtendedID {
			return nil, canframe.ErrInvalidParam
		}
	} else {
		idNibbles = 3
		if fr.Remote {
			letter = 'r'
		} else {
			letter = 't'
		}
		if fr.ID > canframe.MaxStandardID {
			return nil, canframe.ErrInvalidParam
		}
	}
	out := make([]byte, 0, 1+idNibbles+1+2*8)
	out = append(out, letter)
	out = putHex(out, fr.ID, idNibbles)
	out = append(out, '0'+fr.DLC)
	if !fr.Remote {
		for i := 0; i < int(fr.DLC); i++ {
			out = putHex(out, uint32(fr.Data[i]), 2)
		}
	}
	return out, nil
}

// DecodeFrame inverts EncodeFrame for a complete line (without CR). line[0]
// must be one of t/T/r/R (case-insensitive only for the letter is NOT
// accepted on the wire per §4.5; hex digits accept either case).
func DecodeFrame(line []byte) (canframe.Frame, error) {
	var fr canframe.Frame
	if len(line) < 2 {
		return fr, canframe.ErrBadMessage
	}
	var idNibbles int
	switch line[0] {
	case 't':
		fr.Extended, fr.Remote = false, false
		idNibbles = 3
	case 'T':
		fr.Extended, fr.Remote = true, false
		idNibbles = 8
	case 'r':
		fr.Extended, fr.Remote = false, true
		idNibbles = 3
	case 'R':
		fr.Extended, fr.Remote = true, true
		idNibbles = 8
	default:
		return fr, canframe.ErrBadMessage
	}
	if len(line) < 1+idNibbles+1 {
		return fr, canframe.ErrBadMessage
	}
	id, ok := parseHex(line[1 : 1+idNibbles])
	if !ok {
		return fr, canframe.ErrBadMessage
	}
	maxID := uint32(canframe.MaxStandardID)
	if fr.Extended {
		maxID = canframe.MaxExtendedID
	}
	if id > maxID {
		return fr, canframe.ErrBadMessage
	}
	fr.ID = id
	dlcByte := line[1+idNibbles]
	if dlcByte < '0' || dlcByte > '8' {
		return fr, canframe.ErrBadMessage
	}
	fr.DLC = dlcByte - '0'
	payload := line[1+idNibbles+1:]
	if fr.Remote {
		// RTR frames carry no payload hex, regardless of the declared DLC.
		if len(payload) != 0 {
			return fr, canframe.ErrBadMessage
		}
		return fr, nil
	}
	if len(payload) < 2*int(fr.DLC) {
		return fr, canframe.ErrBadMessage
	}
	for i := 0; i < int(fr.DLC); i++ {
		b, ok := parseHex(payload[2*i : 2*i+2])
		if !ok {
			return fr, canframe.ErrBadMessage
		}
		fr.Data[i] = byte(b)
	}
	return fr, nil
}
