package engine

import (
	"io"

	"github.com/canline/slcan/internal/serialport"
)

// ConnectFake binds the engine directly to raw, skipping Connect/openFunc,
// so higher-level packages can test against a responsive fake transport
// without a real TTY.
func (e *Engine) ConnectFake(raw io.ReadWriteCloser, baud int) {
	e.port = serialport.NewConnected(raw, e.onByte)
	e.baud = baud
}
