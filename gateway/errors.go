package gateway

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const unknownErrorMessage = "Unknown error occurred"

// OperationError is returned by every failed gateway operation.
// Error() is the text of the Error notification recorded for it.
type OperationError struct {
	// Op is the operation label, e.g. "Registration".
	Op string
	// Kind is one of the interfaces error kinds.
	Kind error
	// Message is the normalized cause.
	Message string
	// Err is the underlying error, if any.
	Err error
}

func (e *OperationError) Error() string {
	return e.Op + " failed: " + e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OperationError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

type reasoner interface {
	Reason() string
}

type dataMessenger interface {
	DataMessage() string
}

// ErrorMessage extracts the most specific human readable description of err:
// a revert reason, then a message carried in the error's data, then the
// error's own text, and finally a generic fallback.
func ErrorMessage(err error) string {
	if err == nil {
		return unknownErrorMessage
	}

	if reason := revertReason(err); reason != "" {
		return reason
	}
	if msg := dataMessage(err); msg != "" {
		return msg
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return unknownErrorMessage
}

func revertReason(err error) string {
	var r reasoner
	if errors.As(err, &r) {
		if reason := r.Reason(); reason != "" {
			return reason
		}
	}

	// nodes report reverts as a JSON-RPC error whose data is the ABI encoded Error(string)
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil && reason != "" {
					return "execution reverted: " + reason
				}
			}
		}
	}
	return ""
}

func dataMessage(err error) string {
	var dm dataMessenger
	if errors.As(err, &dm) {
		if msg := dm.DataMessage(); msg != "" {
			return msg
		}
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if data, ok := de.ErrorData().(map[string]interface{}); ok {
			if msg, ok := data["message"].(string); ok && strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}
	return ""
}

// QueryError is returned by failed reads.
type QueryError struct {
	// Prefix names the read, e.g. "Failed to get component details".
	Prefix  string
	Kind    error
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	return e.Prefix + ": " + e.Message
}

func (e *QueryError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
