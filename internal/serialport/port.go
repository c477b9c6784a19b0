// Package serialport implements the serial port component (C1): scoped
// open/connect/disconnect of a named TTY, synchronous transmit, and a
// background reader goroutine that delivers every non-empty read to an
// on-byte callback until cancelled.
//
// Grounded on the reference tarm/serial wrapper and the reader-loop shape
// used for the serial backend elsewhere in this codebase (blocking Read in
// a loop, exponential backoff on transient errors, context cancellation).
package serialport

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/canline/slcan/internal/canframe"
)

// rawPort is the minimal surface this package needs from tarm/serial,
// satisfied by *serial.Port in production and by fakes in tests.
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Attrs are the serial line attributes applied on Connect.
type Attrs struct {
	Baudrate int
	Bytesize int // 5..8
	Parity   Parity
	Stopbits int // 1..2
}

type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

const (
	readBufSize = 1024
	backoffMin  = 20 * time.Millisecond
	backoffMax  = 500 * time.Millisecond
)

// OnByte is invoked on the reader goroutine for every non-empty read.
type OnByte func(p []byte)

// openFunc abstracts tarm/serial.OpenPort for tests.
var openFunc = func(name string, a Attrs) (rawPort, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        a.Baudrate,
		Size:        byte(a.Bytesize),
		StopBits:    serial.StopBits(a.Stopbits),
		ReadTimeout: 50 * time.Millisecond,
	}
	switch a.Parity {
	case ParityOdd:
		cfg.Parity = serial.ParityOdd
	case ParityEven:
		cfg.Parity = serial.ParityEven
	default:
		cfg.Parity = serial.ParityNone
	}
	return serial.OpenPort(cfg)
}

// Port owns one TTY and the reader goroutine draining it.
type Port struct {
	mu       sync.Mutex
	raw      rawPort
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	txMu     sync.Mutex
	onByte   OnByte
	connected bool
}

// New constructs a port bound to the given callback; it owns no file
// descriptor until Connect succeeds.
func New(onByte OnByte) *Port {
	return &Port{onByte: onByte}
}

// Connect opens name with attrs and spawns the reader goroutine. Calling
// Connect twice without an intervening Disconnect fails with
// ErrAlreadyConnected.
func (p *Port) Connect(name string, a Attrs) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return canframe.ErrAlreadyConnected
	}
	raw, err := openFunc(name, a)
	if err != nil {
		return canframe.ErrResource.Wrap(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.raw = raw
	p.cancel = cancel
	p.connected = true
	p.wg.Add(1)
	go p.readLoop(ctx, raw)
	return nil
}

func (p *Port) readLoop(ctx context.Context, raw rawPort) {
	defer p.wg.Done()
	buf := make([]byte, readBufSize)
	backoff := backoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := raw.Read(buf)
		if n > 0 {
			p.onByte(buf[:n])
			backoff = backoffMin
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || os.IsTimeout(err) {
				continue
			}
			time.Sleep(backoff)
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}
}

// Disconnect cancels and joins the reader goroutine, then closes the
// descriptor. It is a no-op if not connected.
func (p *Port) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	raw := p.raw
	p.connected = false
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	return raw.Close()
}

// Transmit writes buf synchronously. A short write is reported as tx-busy.
func (p *Port) Transmit(buf []byte) error {
	p.mu.Lock()
	raw := p.raw
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return canframe.ErrOffline
	}
	p.txMu.Lock()
	defer p.txMu.Unlock()
	n, err := raw.Write(buf)
	if err != nil {
		return canframe.ErrTxBusy.Wrap(err)
	}
	if n != len(buf) {
		return canframe.ErrTxBusy
	}
	return nil
}

// Connected reports whether the port currently owns an open descriptor.
func (p *Port) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}
