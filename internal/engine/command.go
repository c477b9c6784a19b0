package engine

import (
	"time"

	"github.com/canline/slcan/internal/canframe"
)

// Default timeouts from the reference implementation.
const (
	ResponseTimeout = 100 * time.Millisecond
	TransmitTimeout = 1000 * time.Millisecond
)

// AckMode selects the SLCAN dialect: Lawicel acknowledges every command with
// CR (success) or BEL (failure); CANable is silent for set-family commands.
type AckMode int

const (
	AckLawicel AckMode = iota
	AckCANable
)

// doCommand runs one request/response exchange under the command lock: it
// clears the response buffer, transmits the request, and (Lawicel mode)
// blocks for exactly expectLen bytes, validating the leading byte. CANable
// mode never waits for set-family commands and rejects anything that
// requires a response unless compatStub is set.
func (e *Engine) doCommand(req []byte, timeout time.Duration, expectLen int, expectFirst byte, responseRequired bool) ([]byte, error) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.resp.Clear()
	wire := make([]byte, 0, len(req)+1)
	wire = append(wire, req...)
	wire = append(wire, cr)
	if err := e.port.Transmit(wire); err != nil {
		return nil, err
	}

	if e.ack == AckCANable {
		if responseRequired {
			if e.compatStub {
				stub := make([]byte, expectLen)
				for i := range stub {
					stub[i] = '0'
				}
				stub[0] = expectFirst
				stub[expectLen-1] = cr
				return stub, nil
			}
			return nil, canframe.ErrBadMessage
		}
		return nil, nil
	}

	out, ok := e.resp.Get(expectLen, timeout)
	if !ok {
		return nil, canframe.ErrTimeout
	}
	if len(out) == 0 || out[0] != expectFirst {
		return nil, canframe.ErrBadMessage
	}
	return out, nil
}

// transmitDrainDelay is the CANable tail delay needed to shift n wire bytes
// out at baud bits/second (10 bits per byte: start + 8 data + stop),
// expressed in microseconds as specified.
func transmitDrainDelay(n, baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	us := (int64(n) * 10 * 1_000_000) / int64(baud)
	return time.Duration(us) * time.Microsecond
}

// SetBitrateIndex issues "S<digit>".
func (e *Engine) SetBitrateIndex(digit byte) error {
	_, err := e.doCommand([]byte{'S', digit}, ResponseTimeout, 1, cr, false)
	return err
}

// SetBTR issues "s<hh><hh>".
func (e *Engine) SetBTR(reg canframe.BTR0BTR1) error {
	req := []byte{'s'}
	req = putHex(req, uint32(reg>>8), 2)
	req = putHex(req, uint32(reg&0xFF), 2)
	_, err := e.doCommand(req, ResponseTimeout, 1, cr, false)
	return err
}

// OpenChannel issues "O".
func (e *Engine) OpenChannel() error {
	_, err := e.doCommand([]byte{'O'}, ResponseTimeout, 1, cr, false)
	return err
}

// CloseChannel issues "C".
func (e *Engine) CloseChannel() error {
	_, err := e.doCommand([]byte{'C'}, ResponseTimeout, 1, cr, false)
	return err
}

// WriteFrame encodes and transmits fr, waiting for its single-letter
// confirmation (or, in CANable mode, sleeping the drain delay).
func (e *Engine) WriteFrame(fr canframe.Frame) error {
	body, err := EncodeFrame(fr)
	if err != nil {
		return err
	}
	confirm := byte('z')
	if fr.Extended {
		confirm = 'Z'
	}

	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.resp.Clear()
	wire := make([]byte, 0, len(body)+1)
	wire = append(wire, body...)
	wire = append(wire, cr)
	if err := e.port.Transmit(wire); err != nil {
		return err
	}
	if e.ack == AckCANable {
		time.Sleep(transmitDrainDelay(len(wire), e.baud))
		return nil
	}
	out, ok := e.resp.Get(2, TransmitTimeout)
	if !ok {
		return canframe.ErrTimeout
	}
	if out[0] != confirm {
		return canframe.ErrBadMessage
	}
	return nil
}

// Status issues "F" and returns the raw adapter status byte.
func (e *Engine) Status() (byte, error) {
	out, err := e.doCommand([]byte{'F'}, ResponseTimeout, 4, 'F', true)
	if err != nil {
		return 0, err
	}
	v, ok := parseHex(out[1:3])
	if !ok {
		return 0, canframe.ErrBadMessage
	}
	return byte(v), nil
}

// SetAcceptanceCode issues "M<hhhhhhhh>".
func (e *Engine) SetAcceptanceCode(code uint32) error {
	req := append([]byte{'M'}, putHex(nil, code, 8)...)
	_, err := e.doCommand(req, ResponseTimeout, 1, cr, false)
	return err
}

// SetAcceptanceMask issues "m<hhhhhhhh>".
func (e *Engine) SetAcceptanceMask(mask uint32) error {
	req := append([]byte{'m'}, putHex(nil, mask, 8)...)
	_, err := e.doCommand(req, ResponseTimeout, 1, cr, false)
	return err
}

// Version issues "V", returning (hardware, firmware) byte pairs as one
// uint16 each.
func (e *Engine) Version() (hardware, firmware uint16, err error) {
	out, err := e.doCommand([]byte{'V'}, ResponseTimeout, 6, 'V', true)
	if err != nil {
		return 0, 0, err
	}
	hw, ok1 := parseHex(out[1:3])
	fw, ok2 := parseHex(out[3:5])
	if !ok1 || !ok2 {
		return 0, 0, canframe.ErrBadMessage
	}
	return uint16(hw), uint16(fw), nil
}

// SerialNumber issues "N".
func (e *Engine) SerialNumber() (uint16, error) {
	out, err := e.doCommand([]byte{'N'}, ResponseTimeout, 6, 'N', true)
	if err != nil {
		return 0, err
	}
	v, ok := parseHex(out[1:5])
	if !ok {
		return 0, canframe.ErrBadMessage
	}
	return uint16(v), nil
}
