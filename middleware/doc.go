// Package middleware exposes HTTP adapters for the authcore Engine:
// bearer-token enforcement, per-class rate admission, and client
// address propagation.
//
// The package translates HTTP semantics into Engine calls and never
// makes authentication decisions itself.
package middleware
