// Package auth authenticates the callers of the timelock API.
//
// Callers present an HS256-signed JWT whose "sub" claim is their address.
// Tokens are short-lived and single-use: the "jti" claim of every accepted token is remembered until the token expires, and presenting it again is rejected.
package auth
