// Package common contains shared constants and sentinel errors used across
// SSO components.
package common

const (
	// AccessTokenHeaderName is the gRPC metadata key that may carry an
	// access token on inbound calls.
	AccessTokenHeaderName = "access_token"

	// RequestIDHeaderName is the HTTP header and gRPC metadata key carrying
	// the per-request correlation id.
	RequestIDHeaderName = "x-request-id"
)
