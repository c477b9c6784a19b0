package canframe

import "errors"

// Code is the stable CAN-API-compatible integer error code carried by every
// error this module returns. 0 is reserved for success and never appears on
// a returned error.
type Code int

const (
	CodeOK               Code = 0
	CodeBusOff           Code = -1
	CodeBusWarning       Code = -2
	CodeBusError         Code = -3
	CodeMessageLost      Code = -10
	CodeOffline          Code = -15
	CodeOnline           Code = -16
	CodeTxBusy           Code = -20
	CodeRxEmpty          Code = -30
	CodeErrorFrame       Code = -40
	CodeTimeout          Code = -50
	CodeResource         Code = -90
	CodeInvalidBaudrate  Code = -91
	CodeInvalidHandle    Code = -92
	CodeInvalidParam     Code = -93
	CodeNullPointer      Code = -94
	CodeNotInitialized   Code = -95
	CodeAlreadyInit      Code = -96
	CodeLibraryError     Code = -97
	CodeNotSupported     Code = -98
	CodeFatal            Code = -99
	CodeBadMessage       Code = -41 // vendor-specific sub-range (<= -100 reserved for other vendors)
	CodeAlreadyConnected Code = -42
)

// Error is the concrete error type returned across the driver. It wraps an
// optional underlying cause and always carries a stable Code.
type Error struct {
	code Code
	msg  string
	err  error
}

func newErr(c Code, msg string) *Error { return &Error{code: c, msg: msg} }

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is reports equality by Code, so a Wrap'd error still matches its sentinel
// under errors.Is even though Wrap returns a distinct *Error value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the stable CAN-API-compatible integer code.
func (e *Error) Code() Code { return e.code }

// Wrap attaches an underlying cause to a copy of the sentinel, preserving Code.
func (e *Error) Wrap(cause error) *Error {
	return &Error{code: e.code, msg: e.msg, err: cause}
}

// Sentinel errors, one per CAN-API condition named in the error taxonomy.
// Compare with errors.Is; recover the numeric code with errors.As + Code().
var (
	ErrBusOff           = newErr(CodeBusOff, "bus off")
	ErrBusWarning       = newErr(CodeBusWarning, "bus warning level")
	ErrBusError         = newErr(CodeBusError, "bus error")
	ErrMessageLost      = newErr(CodeMessageLost, "message lost")
	ErrOffline          = newErr(CodeOffline, "controller offline")
	ErrOnline           = newErr(CodeOnline, "controller already running")
	ErrTxBusy           = newErr(CodeTxBusy, "transmitter busy")
	ErrRxEmpty          = newErr(CodeRxEmpty, "receiver empty")
	ErrErrorFrame       = newErr(CodeErrorFrame, "error frame")
	ErrTimeout          = newErr(CodeTimeout, "timeout")
	ErrResource         = newErr(CodeResource, "resource allocation failed")
	ErrInvalidBaudrate  = newErr(CodeInvalidBaudrate, "invalid baudrate")
	ErrInvalidHandle    = newErr(CodeInvalidHandle, "invalid handle")
	ErrInvalidParam     = newErr(CodeInvalidParam, "invalid parameter")
	ErrNullPointer      = newErr(CodeNullPointer, "null pointer")
	ErrNotInitialized   = newErr(CodeNotInitialized, "not initialized")
	ErrAlreadyInit      = newErr(CodeAlreadyInit, "already initialized")
	ErrLibraryError     = newErr(CodeLibraryError, "library error")
	ErrNotSupported     = newErr(CodeNotSupported, "not supported")
	ErrFatal            = newErr(CodeFatal, "fatal error")
	ErrBadMessage       = newErr(CodeBadMessage, "bad message")
	ErrAlreadyConnected = newErr(CodeAlreadyConnected, "already connected")
)

// CodeOf recovers the stable numeric code from any error in err's chain,
// returning CodeOK for nil and CodeLibraryError if none of them is an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	if err == nil {
		return CodeOK
	}
	return CodeLibraryError
}
