// Package channel implements the CAN channel façade (C7): a process-wide
// handle table giving every opened channel a stable integer identity, the
// per-handle controller state machine, operation-mode enforcement, and the
// status/counter bookkeeping layered on top of the SLCAN engine.
//
// Grounded on the reference handle-table arena (fixed array + in-use bitmap)
// and the probe/init/exit/start/reset/write/read/status operation set.
package channel

import (
	"sync"
	"time"

	"github.com/canline/slcan/internal/btr"
	"github.com/canline/slcan/internal/canframe"
	"github.com/canline/slcan/internal/engine"
	"github.com/canline/slcan/internal/serialport"
)

// MaxChannels bounds the handle table, matching the reference default of 16
// concurrently open channels.
const MaxChannels = 16

// DefaultQueueCapacity is the received-frame queue size used by init, taken
// from the reference implementation (65536 frames).
const DefaultQueueCapacity = 65536

// Handle identifies one reserved slot in the table; live handles run from
// 0 to MaxChannels-1.
type Handle int32

// InvalidHandle is returned by a failed Init and is stored by the
// application-level Channel wrapper once it is closed.
const InvalidHandle Handle = -1

// ProbeState is the outcome of Probe.
type ProbeState int

const (
	ProbeNotTestable ProbeState = iota
	ProbePresent
	ProbeOccupied
	ProbeNotPresent
)

// controllerState tracks the per-handle state machine from INITIALISED to
// RUNNING and back.
type controllerState int

const (
	stateStopped controllerState = iota
	stateRunning
)

// Counters mirrors the tx/rx/err bookkeeping reset on every start.
type Counters struct {
	Tx  uint64
	Rx  uint64
	Err uint64
}

// Params are the connection parameters accepted by Init, mirroring the
// external init-parameter record.
type Params struct {
	DeviceName string
	Baudrate   int
	Bytesize   int
	Parity     serialport.Parity
	Stopbits   int
	Mode       canframe.OpMode
	AckMode    engine.AckMode
}

// record is one channel's private state, guarded by its own mutex; the
// table mutex only guards slot allocation.
type record struct {
	mu       sync.Mutex
	eng      *engine.Engine
	name     string
	mode     canframe.OpMode
	state    controllerState
	status   canframe.Status
	counters Counters
	reg      canframe.BTR0BTR1
	haveReg  bool
}

// Table is the process-wide handle table described by the façade; it is
// normally accessed through the package-level Default table but kept
// instantiable for isolated testing.
type Table struct {
	mu   sync.Mutex
	slot [MaxChannels]*record
}

// NewTable constructs an empty handle table.
func NewTable() *Table {
	return &Table{}
}

// Default is the process-wide table used by the public driver surface.
var Default = NewTable()

// Probe reports whether channel would be usable without reserving it.
func (t *Table) Probe(deviceName string, mode canframe.OpMode) ProbeState {
	if mode&^canframe.SupportedOpMode != 0 {
		return ProbeNotTestable
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.slot {
		if r == nil {
			continue
		}
		r.mu.Lock()
		same := r.name == deviceName
		r.mu.Unlock()
		if same {
			return ProbeOccupied
		}
	}
	return ProbePresent
}

// Init reserves a free handle, opens the serial port, and, in Lawicel mode,
// confirms the adapter speaks SLCAN with a version query before returning.
func (t *Table) Init(p Params) (Handle, error) {
	if p.Mode&^canframe.SupportedOpMode != 0 {
		return InvalidHandle, canframe.ErrInvalidParam
	}

	t.mu.Lock()
	idx := -1
	for i, r := range t.slot {
		if r == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return InvalidHandle, canframe.ErrResource
	}
	r := &record{name: p.DeviceName, mode: p.Mode, state: stateStopped}
	t.slot[idx] = r
	t.mu.Unlock()

	eng := engine.New(DefaultQueueCapacity)
	eng.SetAckMode(p.AckMode)
	attrs := serialport.Attrs{Baudrate: p.Baudrate, Bytesize: p.Bytesize, Parity: p.Parity, Stopbits: p.Stopbits}
	if err := eng.Connect(p.DeviceName, attrs); err != nil {
		t.free(idx)
		return InvalidHandle, err
	}

	// Probe read: in Lawicel mode a version query confirms the adapter
	// answers SLCAN.
	if p.AckMode == engine.AckLawicel {
		if _, _, err := eng.Version(); err != nil {
			_ = eng.Disconnect()
			t.free(idx)
			return InvalidHandle, err
		}
	}
	// Precautionary close in case the adapter was left running.
	_ = eng.CloseChannel()

	r.mu.Lock()
	r.eng = eng
	r.mu.Unlock()
	return Handle(idx), nil
}

func (t *Table) free(idx int) {
	t.mu.Lock()
	t.slot[idx] = nil
	t.mu.Unlock()
}

func (t *Table) get(h Handle) (*record, error) {
	if h < 0 || int(h) >= MaxChannels {
		return nil, canframe.ErrInvalidHandle
	}
	t.mu.Lock()
	r := t.slot[h]
	t.mu.Unlock()
	if r == nil {
		return nil, canframe.ErrInvalidHandle
	}
	return r, nil
}

// Exit closes the channel's controller if running, disconnects the serial
// port, and frees the handle.
func (t *Table) Exit(h Handle) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	eng := r.eng
	if r.state == stateRunning {
		_ = eng.CloseChannel()
		r.state = stateStopped
	}
	r.mu.Unlock()

	_ = eng.Disconnect()
	t.free(int(h))
	return nil
}

// ExitAll tears down every live handle, swallowing individual failures.
func (t *Table) ExitAll() {
	t.mu.Lock()
	handles := make([]Handle, 0, MaxChannels)
	for i, r := range t.slot {
		if r != nil {
			handles = append(handles, Handle(i))
		}
	}
	t.mu.Unlock()
	for _, h := range handles {
		_ = t.Exit(h)
	}
}

// Kill wakes any blocked dequeue/get on the channel without tearing state
// down.
func (t *Table) Kill(h Handle) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()
	eng.Signal()
	return nil
}

// KillAll signals every live handle.
func (t *Table) KillAll() {
	t.mu.Lock()
	handles := make([]Handle, 0, MaxChannels)
	for i, r := range t.slot {
		if r != nil {
			handles = append(handles, Handle(i))
		}
	}
	t.mu.Unlock()
	for _, h := range handles {
		_ = t.Kill(h)
	}
}

// Start converts bitrate to BTR0BTR1, programs it, and opens the
// controller. The controller must be stopped.
func (t *Table) Start(h Handle, br canframe.Bitrate) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRunning {
		return canframe.ErrAlreadyInit
	}
	reg, err := btr.BitrateToBTR0BTR1(br)
	if err != nil {
		return canframe.ErrInvalidBaudrate
	}
	if err := r.eng.SetBTR(reg); err != nil {
		return err
	}
	if err := r.eng.OpenChannel(); err != nil {
		return err
	}
	r.state = stateRunning
	r.status = 0
	r.counters = Counters{}
	r.reg = reg
	r.haveReg = true
	return nil
}

// StartIndex is Start via a CiA bit-rate index instead of a structured
// bitrate record.
func (t *Table) StartIndex(h Handle, index int) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRunning {
		return canframe.ErrAlreadyInit
	}
	reg, err := btr.IndexToBTR0BTR1(index)
	if err != nil {
		return canframe.ErrInvalidBaudrate
	}
	if err := r.eng.SetBTR(reg); err != nil {
		return err
	}
	if err := r.eng.OpenChannel(); err != nil {
		return err
	}
	r.state = stateRunning
	r.status = 0
	r.counters = Counters{}
	r.reg = reg
	r.haveReg = true
	return nil
}

// Reset stops a running controller; it is a no-op success when already
// stopped.
func (t *Table) Reset(h Handle) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRunning {
		return nil
	}
	if err := r.eng.CloseChannel(); err != nil {
		return err
	}
	r.state = stateStopped
	return nil
}

// Write encodes and transmits fr, enforcing the nxtd/nrtr operation-mode
// restrictions.
func (t *Table) Write(h Handle, fr canframe.Frame) error {
	r, err := t.get(h)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return canframe.ErrOffline
	}
	if fr.Extended && r.mode&canframe.OpModeNoXTD != 0 {
		r.mu.Unlock()
		return canframe.ErrInvalidParam
	}
	if fr.Remote && r.mode&canframe.OpModeNoRTR != 0 {
		r.mu.Unlock()
		return canframe.ErrInvalidParam
	}
	eng := r.eng
	r.mu.Unlock()

	if err := eng.WriteFrame(fr); err != nil {
		r.mu.Lock()
		r.status |= canframe.StatusTransmitterBusy
		r.mu.Unlock()
		return err
	}
	r.mu.Lock()
	r.counters.Tx++
	r.mu.Unlock()
	return nil
}

// Read dequeues one frame, distinguishing an empty queue from other
// failures and folding a queue overflow into the status byte.
func (t *Table) Read(h Handle, timeout time.Duration) (canframe.Frame, error) {
	r, err := t.get(h)
	if err != nil {
		return canframe.Frame{}, err
	}
	r.mu.Lock()
	if r.state != stateRunning {
		r.mu.Unlock()
		return canframe.Frame{}, canframe.ErrOffline
	}
	eng := r.eng
	r.mu.Unlock()

	fr, ok := eng.Queue().Dequeue(timeout)
	overflowed, _ := eng.Queue().Overflow()

	r.mu.Lock()
	defer r.mu.Unlock()
	if overflowed {
		r.status |= canframe.StatusQueueOverrun
	}
	if !ok {
		return canframe.Frame{}, canframe.ErrRxEmpty
	}
	if fr.Status {
		r.counters.Err++
	} else {
		r.counters.Rx++
	}
	return fr, nil
}

// Status requests adapter flags (when running) and folds them into the
// channel status byte alongside locally observed conditions.
func (t *Table) Status(h Handle) (canframe.Status, error) {
	r, err := t.get(h)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	running := r.state == stateRunning
	eng := r.eng
	local := r.status
	r.mu.Unlock()

	if !running || eng.AckModeOf() == engine.AckCANable {
		return local, nil
	}
	flags, err := eng.Status()
	if err != nil {
		return local, err
	}
	var adapter canframe.Status
	const (
		bei   = 1 << 2
		ei    = 1 << 0
		epi   = 1 << 1
		ali   = 1 << 3
		doi   = 1 << 4
		rxOvr = 1 << 5
		txOvr = 1 << 6
	)
	if flags&bei != 0 {
		adapter |= canframe.StatusBusError
	}
	if flags&(ei|epi) != 0 {
		adapter |= canframe.StatusWarningLevel
	}
	if flags&ali != 0 {
		adapter |= canframe.StatusBusOff
	}
	if flags&(doi|rxOvr|txOvr) != 0 {
		adapter |= canframe.StatusMessageLost
	}

	r.mu.Lock()
	r.status |= adapter
	snapshot := r.status
	r.mu.Unlock()
	return snapshot, nil
}

// Busload is not measured by this adapter; it returns 0 with the current
// status.
func (t *Table) Busload(h Handle) (uint8, canframe.Status, error) {
	st, err := t.Status(h)
	if err != nil {
		return 0, 0, err
	}
	return 0, st, nil
}

// Bitrate reconstructs the structured record and speed from the stored
// BTR0BTR1. If the controller is stopped, the last programmed values are
// still returned with offline == true.
func (t *Table) Bitrate(h Handle) (canframe.Bitrate, canframe.Speed, bool, error) {
	r, err := t.get(h)
	if err != nil {
		return canframe.Bitrate{}, canframe.Speed{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveReg {
		return canframe.Bitrate{}, canframe.Speed{}, true, canframe.ErrNotInitialized
	}
	bitrateVal := btr.BTR0BTR1ToBitrate(r.reg)
	speed := btr.ToSpeed(bitrateVal)
	return bitrateVal, speed, r.state != stateRunning, nil
}

// CountersOf returns a snapshot of the tx/rx/err counters.
func (t *Table) CountersOf(h Handle) (Counters, error) {
	r, err := t.get(h)
	if err != nil {
		return Counters{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters, nil
}

// HardwareVersion and FirmwareVersion query V and format with the port
// description.
func (t *Table) HardwareVersion(h Handle) (string, error) {
	hw, _, err := t.version(h)
	if err != nil {
		return "", err
	}
	return formatBCD(hw), nil
}

func (t *Table) FirmwareVersion(h Handle) (string, error) {
	_, fw, err := t.version(h)
	if err != nil {
		return "", err
	}
	return formatBCD(fw), nil
}

func (t *Table) version(h Handle) (hw, fw uint16, err error) {
	r, err := t.get(h)
	if err != nil {
		return 0, 0, err
	}
	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()
	return eng.Version()
}

// formatBCD decodes a single version byte (returned by the V command as two
// hex digits) as BCD major.minor, e.g. 0x11 -> "1.1".
func formatBCD(v uint16) string {
	hi, lo := byte(v>>4)&0xF, byte(v)&0xF
	return string([]byte{'0' + hi, '.', '0' + lo})
}

// DeviceName returns the device name a handle was opened against.
func (t *Table) DeviceName(h Handle) (string, error) {
	r, err := t.get(h)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name, nil
}
