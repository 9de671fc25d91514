package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/moonshotcommons/timelock/auth"
	"github.com/moonshotcommons/timelock/events"
	"github.com/moonshotcommons/timelock/httpserver"
	"github.com/moonshotcommons/timelock/timelock"
)

// DefaultEventsLimit is the maximum number of events returned by GET /v1/events when no limit is requested.
const DefaultEventsLimit = 100

// Options contains the options for NewServer.
type Options struct {
	TimeLock *timelock.TimeLock
	Verifier *auth.Verifier
	// Source for GET /v1/events; the endpoint is not registered if nil
	Recorder *events.Recorder

	// Maximum size of request bodies, in bytes
	// Default: 1MB
	MaxBodySize int64
	// Value of the X-Host-Id response header, if set
	HostID string

	Logger *slog.Logger
	// Meter for the request counter
	// Default: no-op
	Meter metric.Meter
}

// Server handles the API requests.
type Server struct {
	tl       *timelock.TimeLock
	verifier *auth.Verifier
	recorder *events.Recorder
	log      *slog.Logger
	requests metric.Int64Counter
	handler  http.Handler
}

// NewServer returns a new Server.
func NewServer(opts Options) (*Server, error) {
	if opts.TimeLock == nil {
		return nil, errors.New("api: timelock is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("api: verifier is required")
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 1 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = noop.NewMeterProvider().Meter("")
	}

	requests, err := opts.Meter.Int64Counter(
		"timelock.api.requests",
		metric.WithDescription("Number of API requests, by operation and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	s := &Server{
		tl:       opts.TimeLock,
		verifier: opts.Verifier,
		recorder: opts.Recorder,
		log:      opts.Logger,
		requests: requests,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/owner", s.handleOwner)
	mux.HandleFunc("POST /v1/txid", s.handleTxID)
	mux.HandleFunc("GET /v1/queued/{id}", s.handleQueued)
	mux.HandleFunc("POST /v1/initialize", s.authenticated(s.handleInitialize))
	mux.HandleFunc("POST /v1/deposit", s.authenticated(s.handleDeposit))
	mux.HandleFunc("POST /v1/queue", s.authenticated(s.handleQueue))
	mux.HandleFunc("POST /v1/execute", s.authenticated(s.handleExecute))
	mux.HandleFunc("POST /v1/cancel", s.authenticated(s.handleCancel))
	if s.recorder != nil {
		mux.HandleFunc("GET /v1/events", s.handleEvents)
	}

	middlewares := []httpserver.Middleware{
		httpserver.MiddlewareMaxBodySize(opts.MaxBodySize),
		httpserver.MiddlewareRequestLogger(opts.Logger),
		httpserver.MiddlewareRequestID(),
	}
	if opts.HostID != "" {
		middlewares = append(middlewares, httpserver.MiddlewareHostIDHeader(opts.HostID))
	}
	s.handler = httpserver.Use(mux, middlewares...)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type callerKey struct{}

// authenticated requires a valid bearer token, and stores the caller's address in the request's context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.fail(w, r, "authenticate", errApiUnauthorized)
			return
		}

		caller, err := s.verifier.Verify(token)
		if err != nil {
			s.log.DebugContext(r.Context(), "Rejected bearer token", slog.Any("error", err))
			s.count(r.Context(), "authenticate", err)
			apiErrorFor(err).WriteResponse(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller)

		// Requests sent by a webhook target while the call is in progress join the operation that dispatched it
		if token := r.Header.Get(httpserver.HeaderXTimelockReentry); token != "" {
			var ok bool
			ctx, ok = s.tl.Reenter(ctx, token)
			if !ok {
				s.log.DebugContext(ctx, "Ignoring re-entry token that does not match an operation in progress")
			}
		}

		next(w, r.WithContext(ctx))
	}
}

func callerFromContext(ctx context.Context) timelock.Address {
	caller, _ := ctx.Value(callerKey{}).(timelock.Address)
	return caller
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) count(ctx context.Context, op string, err error) {
	s.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome(err)),
	))
}

// fail writes an error response for a request that was rejected before reaching the timelock.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, apiErr *httpserver.ApiError) {
	s.requests.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", apiErr.Code),
	))
	apiErr.WriteResponse(w, r)
}

// respond writes the result of a timelock operation.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, status int, res any, err error) {
	s.count(r.Context(), op, err)

	if err != nil {
		apiErr := apiErrorFor(err)
		if apiErr.HTTPStatus() >= http.StatusInternalServerError {
			s.log.WarnContext(r.Context(), "Timelock operation failed",
				slog.String("operation", op),
				slog.String("requestId", httpserver.RequestIDFromContext(r.Context())),
				slog.Any("error", err),
			)
		}
		apiErr.WriteResponse(w, r)
		return
	}

	if res == nil {
		w.WriteHeader(status)
		return
	}
	httpserver.RespondWithStatus(w, r, status, res)
}
