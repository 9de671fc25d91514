package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/moonshotcommons/timelock/auth"
	"github.com/moonshotcommons/timelock/httpserver"
	"github.com/moonshotcommons/timelock/timelock"
)

var (
	errApiBadRequest    = httpserver.NewApiError("bad_request", http.StatusBadRequest, "Invalid request")
	errApiUnauthorized  = httpserver.NewApiError("unauthorized", http.StatusUnauthorized, "Missing or invalid bearer token")
	errApiTokenReplayed = httpserver.NewApiError("token_replayed", http.StatusUnauthorized, "Bearer token was already used")
	errApiInternal      = httpserver.NewApiError("internal", http.StatusInternalServerError, "Internal error")
	errApiAlreadyInit   = httpserver.NewApiError("already_initialized", http.StatusConflict, "The timelock is already initialized")
	errApiInvalidOwner  = httpserver.NewApiError("invalid_owner", http.StatusBadRequest, "The zero address cannot be the owner")
	errApiNotOwner      = httpserver.NewApiError("not_owner", http.StatusForbidden, "Caller is not the owner")
	errApiInvalidValue  = httpserver.NewApiError("invalid_value", http.StatusBadRequest, "Invalid value")
	errApiAlreadyQueued = httpserver.NewApiError("already_queued", http.StatusConflict, "Transaction is already queued")
	errApiNotQueued     = httpserver.NewApiError("not_queued", http.StatusConflict, "Transaction is not queued")
	errApiNotInRange    = httpserver.NewApiError("timestamp_not_in_range", http.StatusUnprocessableEntity, "Timestamp is outside of the allowed delay window")
	errApiNotPassed     = httpserver.NewApiError("timestamp_not_passed", http.StatusUnprocessableEntity, "Timestamp has not passed yet")
	errApiExpired       = httpserver.NewApiError("timestamp_expired", http.StatusUnprocessableEntity, "Grace period has expired")
	errApiTxFailed      = httpserver.NewApiError("tx_failed", http.StatusBadGateway, "Transaction failed")
)

// apiErrorFor maps an error returned by the timelock or the authentication layer to an ApiError.
func apiErrorFor(err error) *httpserver.ApiError {
	var (
		alreadyQueued *timelock.AlreadyQueuedError
		notQueued     *timelock.NotQueuedError
		notInRange    *timelock.TimestampNotInRangeError
		notPassed     *timelock.TimestampNotPassedError
		expired       *timelock.TimestampExpiredError
		txFailed      *timelock.TxFailedError
	)

	switch {
	case errors.Is(err, auth.ErrTokenReplayed):
		return errApiTokenReplayed
	case errors.Is(err, auth.ErrInvalidToken):
		return errApiUnauthorized
	case errors.As(err, &txFailed):
		return errApiTxFailed.Clone(
			httpserver.WithInnerError(txFailed.Err),
			httpserver.WithMetadata(map[string]string{"txId": txFailed.TxID.Hex()}),
		)
	case errors.Is(err, timelock.ErrAlreadyInitialized):
		return errApiAlreadyInit
	case errors.Is(err, timelock.ErrInvalidOwner):
		return errApiInvalidOwner
	case errors.Is(err, timelock.ErrNotOwner):
		return errApiNotOwner
	case errors.Is(err, timelock.ErrInvalidValue):
		return errApiInvalidValue
	case errors.As(err, &alreadyQueued):
		return errApiAlreadyQueued.Clone(httpserver.WithMetadata(map[string]string{
			"txId": alreadyQueued.TxID.Hex(),
		}))
	case errors.As(err, &notQueued):
		return errApiNotQueued.Clone(httpserver.WithMetadata(map[string]string{
			"txId": notQueued.TxID.Hex(),
		}))
	case errors.As(err, &notInRange):
		return errApiNotInRange.Clone(httpserver.WithMetadata(map[string]string{
			"blockTimestamp": formatUint(notInRange.BlockTimestamp),
			"timestamp":      formatUint(notInRange.Timestamp),
		}))
	case errors.As(err, &notPassed):
		return errApiNotPassed.Clone(httpserver.WithMetadata(map[string]string{
			"blockTimestamp": formatUint(notPassed.BlockTimestamp),
			"timestamp":      formatUint(notPassed.Timestamp),
		}))
	case errors.As(err, &expired):
		return errApiExpired.Clone(httpserver.WithMetadata(map[string]string{
			"blockTimestamp": formatUint(expired.BlockTimestamp),
			"expiresAt":      formatUint(expired.ExpiresAt),
		}))
	default:
		return errApiInternal
	}
}

// outcome is the value of the "outcome" attribute of the request counter.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenReplayed) {
		return "unauthenticated"
	}
	return timelock.KindOf(err).String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
