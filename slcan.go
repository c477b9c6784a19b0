// Package slcan is a host-side driver for SLCAN (Lawicel-protocol) serial
// CAN adapters: a Channel opens a serial CAN-USB device, negotiates its
// bit-rate, and exchanges CAN frames with it over the ASCII SLCAN command
// set.
//
// The canonical frame, operation-mode, status and bit-rate types live in
// internal/canframe and are re-exported here as aliases so callers never
// import an internal package directly.
package slcan

import (
	"time"

	"github.com/canline/slcan/internal/btr"
	"github.com/canline/slcan/internal/canframe"
	"github.com/canline/slcan/internal/channel"
	"github.com/canline/slcan/internal/engine"
	"github.com/canline/slcan/internal/serialport"
)

// Re-exported data model. See internal/canframe for definitions.
type (
	Frame     = canframe.Frame
	Timestamp = canframe.Timestamp
	OpMode    = canframe.OpMode
	Status    = canframe.Status
	Bitrate   = canframe.Bitrate
	BTR0BTR1  = canframe.BTR0BTR1
	Speed     = canframe.Speed
	Error     = canframe.Error
	Code      = canframe.Code
	Parity    = serialport.Parity
)

const (
	OpModeDefault = canframe.OpModeDefault
	OpModeMonitor = canframe.OpModeMonitor
	OpModeErr     = canframe.OpModeErr
	OpModeNoRTR   = canframe.OpModeNoRTR
	OpModeNoXTD   = canframe.OpModeNoXTD
	OpModeShared  = canframe.OpModeShared
)

const (
	ParityNone = serialport.ParityNone
	ParityOdd  = serialport.ParityOdd
	ParityEven = serialport.ParityEven
)

// Sentinel errors, re-exported for errors.Is.
var (
	ErrBusOff            = canframe.ErrBusOff
	ErrBusWarning        = canframe.ErrBusWarning
	ErrBusError          = canframe.ErrBusError
	ErrMessageLost       = canframe.ErrMessageLost
	ErrOffline           = canframe.ErrOffline
	ErrOnline            = canframe.ErrOnline
	ErrTxBusy            = canframe.ErrTxBusy
	ErrRxEmpty           = canframe.ErrRxEmpty
	ErrErrorFrame        = canframe.ErrErrorFrame
	ErrTimeout           = canframe.ErrTimeout
	ErrResource          = canframe.ErrResource
	ErrInvalidBaudrate   = canframe.ErrInvalidBaudrate
	ErrInvalidHandle     = canframe.ErrInvalidHandle
	ErrInvalidParam      = canframe.ErrInvalidParam
	ErrNullPointer       = canframe.ErrNullPointer
	ErrNotInitialized    = canframe.ErrNotInitialized
	ErrAlreadyInit       = canframe.ErrAlreadyInit
	ErrLibraryError      = canframe.ErrLibraryError
	ErrNotSupported      = canframe.ErrNotSupported
	ErrFatal             = canframe.ErrFatal
	ErrBadMessage        = canframe.ErrBadMessage
	ErrAlreadyConnected  = canframe.ErrAlreadyConnected
)

// CodeOf extracts the stable CAN-API error code from err: CodeOK (0) for nil,
// and CodeLibraryError for an error that carries no code.
func CodeOf(err error) Code { return canframe.CodeOf(err) }

// OpenParams are the parameters accepted by Open.
type OpenParams struct {
	DeviceName string
	Baudrate   int // serial line baud, default 57600
	Bytesize   int // default 8
	Parity     Parity
	Stopbits   int // default 1
	Mode       OpMode
	CANable    bool // silent/unacknowledged command dialect instead of Lawicel
}

// Channel is a value type over one open application-visible CAN channel; the
// zero value holds no handle. Every method delegates to the process-wide
// channel façade.
type Channel struct {
	handle channel.Handle
	table  *channel.Table
}

// Open reserves a handle, connects the serial port at the given attributes,
// and, unless CANable is set, confirms the adapter answers SLCAN with a
// version query.
func Open(p OpenParams) (*Channel, error) {
	if p.Baudrate == 0 {
		p.Baudrate = 57600
	}
	if p.Bytesize == 0 {
		p.Bytesize = 8
	}
	if p.Stopbits == 0 {
		p.Stopbits = 1
	}
	ack := engine.AckLawicel
	if p.CANable {
		ack = engine.AckCANable
	}
	h, err := channel.Default.Init(channel.Params{
		DeviceName: p.DeviceName,
		Baudrate:   p.Baudrate,
		Bytesize:   p.Bytesize,
		Parity:     p.Parity,
		Stopbits:   p.Stopbits,
		Mode:       p.Mode,
		AckMode:    ack,
	})
	if err != nil {
		return nil, err
	}
	return &Channel{handle: h, table: channel.Default}, nil
}

// Probe reports whether deviceName would be usable at mode without
// reserving it.
func Probe(deviceName string, mode OpMode) channel.ProbeState {
	return channel.Default.Probe(deviceName, mode)
}

func (c *Channel) valid() bool {
	return c != nil && c.table != nil && c.handle != channel.InvalidHandle
}

// Start converts br to BTR0BTR1 and opens the controller.
func (c *Channel) Start(br Bitrate) error {
	if !c.valid() {
		return ErrInvalidHandle
	}
	return c.table.Start(c.handle, br)
}

// StartIndex starts the controller from a CiA bit-rate index.
func (c *Channel) StartIndex(index int) error {
	if !c.valid() {
		return ErrInvalidHandle
	}
	return c.table.StartIndex(c.handle, index)
}

// Reset stops the controller; idempotent when already stopped.
func (c *Channel) Reset() error {
	if !c.valid() {
		return ErrInvalidHandle
	}
	return c.table.Reset(c.handle)
}

// Write transmits fr.
func (c *Channel) Write(fr Frame) error {
	if !c.valid() {
		return ErrInvalidHandle
	}
	return c.table.Write(c.handle, fr)
}

// Read dequeues one frame, blocking up to timeout (0 polls once, a negative
// duration blocks indefinitely).
func (c *Channel) Read(timeout time.Duration) (Frame, error) {
	if !c.valid() {
		return Frame{}, ErrInvalidHandle
	}
	if timeout < 0 {
		timeout = 65535 * time.Millisecond
	}
	return c.table.Read(c.handle, timeout)
}

// Status returns the current status byte, refreshed from the adapter while
// running.
func (c *Channel) Status() (Status, error) {
	if !c.valid() {
		return 0, ErrInvalidHandle
	}
	return c.table.Status(c.handle)
}

// Busload is not measured by this adapter; it always returns 0.
func (c *Channel) Busload() (uint8, Status, error) {
	if !c.valid() {
		return 0, 0, ErrInvalidHandle
	}
	return c.table.Busload(c.handle)
}

// BitrateInfo reconstructs the structured bit-rate and speed currently
// programmed, with offline == true if the controller is stopped.
func (c *Channel) BitrateInfo() (Bitrate, Speed, bool, error) {
	if !c.valid() {
		return Bitrate{}, Speed{}, false, ErrInvalidHandle
	}
	return c.table.Bitrate(c.handle)
}

// Counters returns the tx/rx/err frame counters.
func (c *Channel) Counters() (channel.Counters, error) {
	if !c.valid() {
		return channel.Counters{}, ErrInvalidHandle
	}
	return c.table.CountersOf(c.handle)
}

// HardwareVersion and FirmwareVersion query the adapter's V response.
func (c *Channel) HardwareVersion() (string, error) {
	if !c.valid() {
		return "", ErrInvalidHandle
	}
	return c.table.HardwareVersion(c.handle)
}

func (c *Channel) FirmwareVersion() (string, error) {
	if !c.valid() {
		return "", ErrInvalidHandle
	}
	return c.table.FirmwareVersion(c.handle)
}

// DeviceName returns the device path the channel was opened against.
func (c *Channel) DeviceName() (string, error) {
	if !c.valid() {
		return "", ErrInvalidHandle
	}
	return c.table.DeviceName(c.handle)
}

// Kill wakes any blocked Read or in-flight command on this channel without
// tearing its state down.
func (c *Channel) Kill() error {
	if !c.valid() {
		return ErrInvalidHandle
	}
	return c.table.Kill(c.handle)
}

// Close tears the channel down: stops the controller if running,
// disconnects the serial port and frees the handle. Close is idempotent;
// calling it on an already-closed or never-opened channel returns
// ErrInvalidHandle.
func (c *Channel) Close() error {
	if !c.valid() {
		return ErrInvalidHandle
	}
	err := c.table.Exit(c.handle)
	c.handle = channel.InvalidHandle
	return err
}

// KillAll signals every live channel process-wide.
func KillAll() { channel.Default.KillAll() }

// ExitAll tears down every live channel process-wide.
func ExitAll() { channel.Default.ExitAll() }

// IndexToBitrate, IndexToBTR0BTR1, BTR0BTR1ToBitrate, BitrateToBTR0BTR1,
// ToSpeed, StringToBitrate and BitrateToString re-export the C5 bit-timing
// converters used directly by callers that only need the pure math, without
// opening a channel.
var (
	IndexToBitrate    = btr.IndexToBitrate
	IndexToBTR0BTR1   = btr.IndexToBTR0BTR1
	BTR0BTR1ToIndex   = btr.BTR0BTR1ToIndex
	BitrateToIndex    = btr.BitrateToIndex
	BitrateToBTR0BTR1 = btr.BitrateToBTR0BTR1
	BTR0BTR1ToBitrate = btr.BTR0BTR1ToBitrate
	ToSpeed           = btr.ToSpeed
	StringToBitrate   = btr.StringToBitrate
	BitrateToString   = btr.BitrateToString
)
