// Package rpc exposes blockchain state via a JSON-RPC 2.0 HTTP endpoint.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolchain/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
)

// Domain error codes, per spec.md §7's error-kind table.
const (
	CodeInvalidSignature     = -32001
	CodeInvalidNonce         = -32002
	CodeInsufficientFunds    = -32003
	CodeDuplicateProof       = -32004
	CodeStateConflict        = -32005
	CodeMempoolFull          = -32006
	CodeVDFVerificationFail  = -32007
	CodeNotAuthorized        = -32008
	CodeNotFound             = -32009
)

// domainCode maps a core sentinel error to its JSON-RPC domain code. Errors
// not covered here fall back to CodeInternalError.
func domainCode(err error) (int, bool) {
	switch {
	case errors.Is(err, core.ErrInvalidSignature):
		return CodeInvalidSignature, true
	case errors.Is(err, core.ErrInvalidNonce):
		return CodeInvalidNonce, true
	case errors.Is(err, core.ErrInsufficientFunds):
		return CodeInsufficientFunds, true
	case errors.Is(err, core.ErrDuplicateProof):
		return CodeDuplicateProof, true
	case errors.Is(err, core.ErrStateConflict):
		return CodeStateConflict, true
	case errors.Is(err, core.ErrMempoolFull):
		return CodeMempoolFull, true
	case errors.Is(err, core.ErrVDFVerificationFailed):
		return CodeVDFVerificationFail, true
	case errors.Is(err, core.ErrNotAuthorized):
		return CodeNotAuthorized, true
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrVaultNotFound),
		errors.Is(err, core.ErrProposalNotFound),
		errors.Is(err, core.ErrUnknownValidator):
		return CodeNotFound, true
	default:
		return CodeInternalError, false
	}
}

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// errFromDomain builds a Response, picking the domain-specific code for err
// when recognised, CodeInternalError otherwise.
func errFromDomain(id any, err error) Response {
	code, _ := domainCode(err)
	return errResponse(id, code, err.Error())
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
