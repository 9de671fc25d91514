package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	kclock "k8s.io/utils/clock"

	"github.com/moonshotcommons/timelock/timelock"
)

var (
	// ErrInvalidToken is returned when a token can't be parsed, its signature is not valid, or its claims are not acceptable.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenReplayed is returned when a token that was already used is presented again.
	ErrTokenReplayed = errors.New("auth: token was already used")
)

const signingMethod = "HS256"

// Options contains the options for NewVerifier and NewIssuer.
type Options struct {
	// Shared secret for HS256
	Secret []byte
	// Value of the "iss" and "aud" claims
	Issuer string
	// Maximum lifetime of tokens, from "iat" to "exp"
	MaxTTL time.Duration

	// Required by the Verifier
	Replay *ReplayCache
	// Default: real clock
	Clock kclock.PassiveClock
}

func (o *Options) validate() error {
	if len(o.Secret) < 32 {
		return errors.New("auth: secret must be at least 32 bytes long")
	}
	if o.Issuer == "" {
		return errors.New("auth: issuer is required")
	}
	if o.MaxTTL <= 0 {
		return errors.New("auth: max TTL must be positive")
	}
	if o.Clock == nil {
		o.Clock = kclock.RealClock{}
	}
	return nil
}

// Verifier validates tokens and returns the address of the caller.
type Verifier struct {
	opts   Options
	parser *jwt.Parser
}

// NewVerifier returns a new Verifier.
func NewVerifier(opts Options) (*Verifier, error) {
	err := opts.validate()
	if err != nil {
		return nil, err
	}
	if opts.Replay == nil {
		return nil, errors.New("auth: replay cache is required")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(opts.Clock.Now),
	)
	return &Verifier{
		opts:   opts,
		parser: parser,
	}, nil
}

// Verify validates the token and returns the caller's address.
// The token is consumed: verifying it again fails with ErrTokenReplayed.
func (v *Verifier) Verify(token string) (timelock.Address, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.opts.Secret, nil
	})
	if err != nil {
		return timelock.Address{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.ID == "" {
		return timelock.Address{}, fmt.Errorf("%w: missing token ID", ErrInvalidToken)
	}
	if claims.IssuedAt == nil {
		return timelock.Address{}, fmt.Errorf("%w: missing issue time", ErrInvalidToken)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > v.opts.MaxTTL {
		return timelock.Address{}, fmt.Errorf("%w: lifetime exceeds %v", ErrInvalidToken, v.opts.MaxTTL)
	}

	caller, err := timelock.ParseAddress(claims.Subject)
	if err != nil || caller.IsZero() {
		return timelock.Address{}, fmt.Errorf("%w: subject is not a valid address", ErrInvalidToken)
	}

	if !v.opts.Replay.Claim(claims.ID, claims.ExpiresAt.Time) {
		return timelock.Address{}, ErrTokenReplayed
	}

	return caller, nil
}

// Issuer mints tokens for callers.
type Issuer struct {
	opts Options
}

// NewIssuer returns a new Issuer.
func NewIssuer(opts Options) (*Issuer, error) {
	err := opts.validate()
	if err != nil {
		return nil, err
	}
	return &Issuer{opts: opts}, nil
}

// Issue returns a signed token for caller, valid for ttl.
// A ttl of zero or greater than the maximum uses the maximum.
func (i *Issuer) Issue(caller timelock.Address, ttl time.Duration) (string, error) {
	if caller.IsZero() {
		return "", errors.New("auth: cannot issue a token for the zero address")
	}
	if ttl <= 0 || ttl > i.opts.MaxTTL {
		ttl = i.opts.MaxTTL
	}

	// Numeric dates have a 1s resolution
	now := i.opts.Clock.Now().Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   caller.Hex(),
		Issuer:    i.opts.Issuer,
		Audience:  jwt.ClaimStrings{i.opts.Issuer},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}
