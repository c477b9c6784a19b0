package engine

import (
	"sync"

	"github.com/canline/slcan/internal/fifo"
	"github.com/canline/slcan/internal/respbuf"
	"github.com/canline/slcan/internal/serialport"
)

// Engine is the SLCAN protocol engine for one channel: it owns the serial
// port, the received-frame queue, the response buffer, and the byte
// accumulator feeding them, plus the command lock serialising every
// request/response exchange.
type Engine struct {
	port *serialport.Port
	acc  *accumulator
	queue *fifo.Queue
	resp *respbuf.Buffer

	cmdMu      sync.Mutex
	ack        AckMode
	baud       int
	compatStub bool
}

// New constructs an engine with a received-frame queue of the given
// capacity. The engine owns no serial descriptor until Connect succeeds.
func New(queueCapacity int) *Engine {
	e := &Engine{
		queue: fifo.New(queueCapacity),
		resp:  respbuf.New(),
	}
	e.acc = newAccumulator(e.queue, e.resp, nowMonotonic)
	e.port = serialport.New(e.onByte)
	return e
}

func (e *Engine) onByte(p []byte) {
	e.acc.Feed(p)
}

// Connect opens the named serial device at the given line attributes.
func (e *Engine) Connect(name string, attrs serialport.Attrs) error {
	if err := e.port.Connect(name, attrs); err != nil {
		return err
	}
	e.baud = attrs.Baudrate
	return nil
}

// Disconnect tears down the serial port and wakes any blocked caller.
func (e *Engine) Disconnect() error {
	err := e.port.Disconnect()
	e.Signal()
	return err
}

// Signal unblocks every goroutine currently waiting on a queued frame or a
// command response, used during shutdown to avoid a stuck caller.
func (e *Engine) Signal() {
	e.queue.Signal()
	e.resp.Signal()
}

// Connected reports whether the underlying serial port is open.
func (e *Engine) Connected() bool {
	return e.port.Connected()
}

// Queue exposes the received-frame queue for channel-level Read operations.
func (e *Engine) Queue() *fifo.Queue {
	return e.queue
}

// SetAckMode switches between Lawicel (acknowledged) and CANable (silent)
// command semantics. It takes the command lock so it never races a
// request/response exchange in flight.
func (e *Engine) SetAckMode(mode AckMode) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.ack = mode
}

// AckModeOf reports the engine's current dialect.
func (e *Engine) AckModeOf() AckMode {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	return e.ack
}

// SetCompatStub controls whether response-requiring commands (version,
// serial number, status) return a zeroed stub instead of bad-message when
// the engine is in CANable mode.
func (e *Engine) SetCompatStub(on bool) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.compatStub = on
}
