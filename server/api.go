package server

import (
	"errors"
	"net/http"

	zerotrust "github.com/mayanks4367/zero-trust"
)

// NextOffsetHeader carries the advanced read cursor on GET /v1/secret.
const NextOffsetHeader = "X-Next-Offset"

type UnlockRequest struct {
	PIN int32 `json:"pin"`
}

type ControlRequest struct {
	Code uint32 `json:"code"`
	Arg  []byte `json:"arg"`
}

type WriteResponse struct {
	Stored    int  `json:"stored"`
	Truncated bool `json:"truncated,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidCredential = "invalid_credential"
	CodeLocked            = "locked"
	CodeInterrupted       = "interrupted"
	CodeTransferFault     = "transfer_fault"
	CodeInvalidRequest    = "invalid_request"
	CodeClosed            = "closed"
	CodeInternal          = "internal"
)

var errorTable = []struct {
	err    error
	code   string
	status int
}{
	{zerotrust.ErrInvalidCredential, CodeInvalidCredential, http.StatusForbidden},
	{zerotrust.ErrAccessDenied, CodeLocked, http.StatusForbidden},
	{zerotrust.ErrInterrupted, CodeInterrupted, http.StatusServiceUnavailable},
	{zerotrust.ErrTransferFault, CodeTransferFault, http.StatusBadRequest},
	{zerotrust.ErrInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
	{zerotrust.ErrClosed, CodeClosed, http.StatusServiceUnavailable},
}

// classify maps a vault error to its wire code and HTTP status.
func classify(err error) (string, int) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// ErrorForCode returns the vault sentinel for a wire code, or nil when the
// code is unknown.
func ErrorForCode(code string) error {
	for _, e := range errorTable {
		if e.code == code {
			return e.err
		}
	}
	return nil
}
