package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/moonshotcommons/timelock/httpserver"
	"github.com/moonshotcommons/timelock/timelock"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := s.tl.Owner(r.Context())
	s.respond(w, r, "owner", http.StatusOK, OwnerResponse{Owner: owner, Initialized: !owner.IsZero()}, err)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	err := s.tl.Initialize(r.Context(), caller)
	s.respond(w, r, "initialize", http.StatusOK, OwnerResponse{Owner: caller, Initialized: true}, err)
}

func (s *Server) handleTxID(w http.ResponseWriter, r *http.Request) {
	d, ok := s.readDescriptor(w, r, "txid")
	if !ok {
		return
	}
	s.respond(w, r, "txid", http.StatusOK, TxResponse{TxID: s.tl.TxID(d)}, nil)
}

func (s *Server) handleQueued(w http.ResponseWriter, r *http.Request) {
	id, err := timelock.ParseTxID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "queued", errApiBadRequest.Clone(httpserver.WithInnerError(err)))
		return
	}

	queued, err := s.tl.IsQueued(r.Context(), id)
	s.respond(w, r, "queued", http.StatusOK, QueuedResponse{TxID: id, Queued: queued}, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !s.readJSON(w, r, "deposit", &req) {
		return
	}
	value, err := parseValue(req.Value)
	if err != nil {
		s.fail(w, r, "deposit", errApiInvalidValue.Clone(httpserver.WithInnerError(err)))
		return
	}

	err = s.tl.Deposit(r.Context(), callerFromContext(r.Context()), value)
	s.respond(w, r, "deposit", http.StatusNoContent, nil, err)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.handleTx(w, r, "queue", s.tl.Queue)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.handleTx(w, r, "execute", s.tl.Execute)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleTx(w, r, "cancel", s.tl.Cancel)
}

type txOperation func(ctx context.Context, caller timelock.Address, d timelock.Descriptor) (timelock.TxID, error)

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request, op string, fn txOperation) {
	d, ok := s.readDescriptor(w, r, op)
	if !ok {
		return
	}

	id, err := fn(r.Context(), callerFromContext(r.Context()), d)
	s.respond(w, r, op, http.StatusOK, TxResponse{TxID: id}, err)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after uint64
	if v := q.Get("after"); v != "" {
		var err error
		after, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.fail(w, r, "events", errApiBadRequest.Clone(httpserver.WithInnerError(fmt.Errorf("invalid 'after': %w", err))))
			return
		}
	}

	limit := DefaultEventsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.fail(w, r, "events", errApiBadRequest.Clone(httpserver.WithInnerError(errors.New("'limit' must be a positive integer"))))
			return
		}
		limit = min(n, DefaultEventsLimit)
	}

	records := s.recorder.List(after, limit)
	res := EventsResponse{
		Events: make([]Event, len(records)),
		Next:   after,
	}
	for i, rec := range records {
		res.Events[i] = newEvent(rec)
		res.Next = rec.Seq
	}
	s.respond(w, r, "events", http.StatusOK, res, nil)
}

func (s *Server) readDescriptor(w http.ResponseWriter, r *http.Request, op string) (timelock.Descriptor, bool) {
	var body Descriptor
	if !s.readJSON(w, r, op, &body) {
		return timelock.Descriptor{}, false
	}
	d, err := body.ToDescriptor()
	if err != nil {
		s.fail(w, r, op, errApiBadRequest.Clone(httpserver.WithInnerError(err)))
		return timelock.Descriptor{}, false
	}
	return d, true
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after the JSON object")
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.fail(w, r, op, errApiBadRequest.Clone(
				httpserver.WithInnerError(fmt.Errorf("request body is larger than %d bytes", maxBytesErr.Limit)),
			))
			return false
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		s.fail(w, r, op, errApiBadRequest.Clone(httpserver.WithInnerError(err)))
		return false
	}
	return true
}
