// Package api exposes a TimeLock over an HTTP JSON API.
//
// Mutating endpoints require a bearer token that identifies the caller; read-only endpoints are public.
package api
