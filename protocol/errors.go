package protocol

import (
	"fmt"

	"github.com/juju/errors"
)

// Code identifies a failure kind. Every fallible operation in this module
// reports exactly one of these.
type Code int

const (
	CodeNone Code = iota
	CodeGeneral
	CodeTimeout
	CodeAlloc
	CodeParam
	CodeCommOpen
	CodeCommRead
	CodeCommWrite
	CodeConnect
	CodeReply
	CodeFileOpen
	CodeFileCreate
	CodeFileRead
	CodeFileWrite
	CodeFileSeek
	CodeFileSize
	CodeFileStat
	CodeRespHdr
	CodeSlipStart
	CodeSlipFrame
	CodeSlipState
	CodeSlipData
	CodeSlipEnd
	CodeUnknownOUI
	CodeImageSize
	CodeDevice
	CodeFilenameLength
)

var codeNames = map[Code]string{
	CodeGeneral:        "general failure",
	CodeTimeout:        "timeout",
	CodeAlloc:          "allocation failure",
	CodeParam:          "invalid parameter",
	CodeCommOpen:       "can't open port",
	CodeCommRead:       "port read failure",
	CodeCommWrite:      "port write failure",
	CodeConnect:        "connection failed",
	CodeReply:          "unexpected reply",
	CodeFileOpen:       "can't open file",
	CodeFileCreate:     "can't create file",
	CodeFileRead:       "file read failure",
	CodeFileWrite:      "file write failure",
	CodeFileSeek:       "file seek failure",
	CodeFileSize:       "can't determine file size",
	CodeFileStat:       "can't stat file",
	CodeRespHdr:        "bad response header",
	CodeSlipStart:      "missing SLIP frame start",
	CodeSlipFrame:      "SLIP framing error",
	CodeSlipState:      "SLIP reader state error",
	CodeSlipData:       "SLIP data unavailable",
	CodeSlipEnd:        "missing SLIP frame end",
	CodeUnknownOUI:     "unknown OUI",
	CodeImageSize:      "bad image size",
	CodeDevice:         "device not programmed",
	CodeFilenameLength: "filename too long",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", int(c))
}

// Error couples a Code with optional context. It is the concrete type behind
// every error this module originates; annotation layers added with
// juju/errors preserve it as the cause.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Err returns a bare error carrying the given code.
func Err(code Code) *Error {
	return &Error{Code: code}
}

// Errf returns an error carrying the given code and a formatted message.
func Errf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from an error, unwrapping any annotations.
// It returns CodeNone for nil and CodeGeneral for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Code
	}
	return CodeGeneral
}

// IsTimeout reports whether the error is a reply timeout.
func IsTimeout(err error) bool {
	return CodeOf(err) == CodeTimeout
}
