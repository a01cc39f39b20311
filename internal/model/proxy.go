// Package model defines shared types for the gateway.
package model

import (
	"net/http"
)

// ProxyRequest represents a client request to be forwarded to a backend.
// It is built per inbound call and owned by the goroutine serving it.
type ProxyRequest struct {
	Method   string
	Path     string // escaped request path, e.g. /api/users/42
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ResultKind tags the variant held by a ProxyResult.
type ResultKind int

const (
	// Relayed carries a backend response to be passed through unchanged.
	Relayed ResultKind = iota
	// BackendUnavailable means the backend could not be reached in time.
	BackendUnavailable
	// BackendInvalid means the backend answered with a body the gateway will not relay.
	BackendInvalid
)

func (k ResultKind) String() string {
	switch k {
	case Relayed:
		return "relayed"
	case BackendUnavailable:
		return "backend_unavailable"
	case BackendInvalid:
		return "backend_invalid"
	default:
		return "unknown"
	}
}

// ProxyResult is the outcome of exactly one outbound call.
type ProxyResult struct {
	Kind    ResultKind
	Service string // display name of the resolved backend, e.g. "User"

	// Set when Kind == Relayed.
	StatusCode int
	Header     http.Header
	Body       []byte

	// Set when Kind != Relayed; operational detail for logs only.
	Reason string
}

// RelayedResult builds a Relayed result.
func RelayedResult(service string, status int, header http.Header, body []byte) *ProxyResult {
	return &ProxyResult{Kind: Relayed, Service: service, StatusCode: status, Header: header, Body: body}
}

// UnavailableResult builds a BackendUnavailable result.
func UnavailableResult(service, reason string) *ProxyResult {
	return &ProxyResult{Kind: BackendUnavailable, Service: service, Reason: reason}
}

// InvalidResult builds a BackendInvalid result.
func InvalidResult(service, reason string) *ProxyResult {
	return &ProxyResult{Kind: BackendInvalid, Service: service, Reason: reason}
}
