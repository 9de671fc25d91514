package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/moonshotcommons/timelock/auth"
	"github.com/moonshotcommons/timelock/events"
	"github.com/moonshotcommons/timelock/host"
	"github.com/moonshotcommons/timelock/store/memory"
	"github.com/moonshotcommons/timelock/timelock"
)

var (
	self     = timelock.MustParseAddress("0x000000000000000000000000000000000071e10c")
	owner    = timelock.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	stranger = timelock.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	target   = timelock.MustParseAddress("0x00000000000000000000000000000000000000aa")
)

type fixture struct {
	srv        *Server
	clock      *clocktesting.FakePassiveClock
	ledger     *host.Ledger
	dispatcher *host.Dispatcher
	issuer     *auth.Issuer
	reader     *sdkmetric.ManualReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:  clocktesting.NewFakePassiveClock(time.Unix(1000, 0)),
		ledger: host.NewLedger(),
		reader: sdkmetric.NewManualReader(),
	}
	f.dispatcher = host.NewDispatcher(f.ledger, nil)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	t.Cleanup(func() { _ = mp.Shutdown(t.Context()) })

	recorder := events.NewRecorder(events.RecorderOptions{})
	tl, err := timelock.New(timelock.Options{
		Address:  self,
		Store:    memory.New(),
		Caller:   f.dispatcher,
		Sink:     recorder,
		Treasury: f.ledger,
		Clock:    f.clock,
	})
	require.NoError(t, err)

	replay := auth.NewReplayCache(auth.ReplayCacheOptions{})
	t.Cleanup(replay.Stop)
	authOpts := auth.Options{
		Secret: []byte(strings.Repeat("s", 32)),
		Issuer: "timelockd",
		MaxTTL: time.Minute,
		Replay: replay,
	}
	f.issuer, err = auth.NewIssuer(authOpts)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(authOpts)
	require.NoError(t, err)

	f.srv, err = NewServer(Options{
		TimeLock: tl,
		Verifier: verifier,
		Recorder: recorder,
		HostID:   "test-host",
		Meter:    mp.Meter("test"),
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) token(t *testing.T, caller timelock.Address) string {
	t.Helper()
	token, err := f.issuer.Issue(caller, 0)
	require.NoError(t, err)
	return token
}

// do sends a request; if caller is not nil, a fresh token is minted for it.
func (f *fixture) do(t *testing.T, method, path string, caller *timelock.Address, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		reqBody.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&reqBody).Encode(b))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	if caller != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, *caller))
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Code       string            `json:"code"`
	InnerError string            `json:"innerError"`
	Metadata   map[string]string `json:"metadata"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	e := decode[errorBody](t, rec)
	require.Equal(t, code, e.Code)
	return e
}

func transferDescriptor(value int64, ts uint64) Descriptor {
	return Descriptor{
		Target:    target,
		Value:     big.NewInt(value).String(),
		Func:      "transfer(address,uint256)",
		Data:      "0x",
		Timestamp: ts,
	}
}

func TestScenario(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "test-host", rec.Header().Get("X-Host-Id"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	t.Run("owner is unset", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/owner", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[OwnerResponse](t, rec)
		assert.False(t, res.Initialized)
		assert.True(t, res.Owner.IsZero())
	})

	t.Run("initialize", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/initialize", &owner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, owner, decode[OwnerResponse](t, rec).Owner)

		rec = f.do(t, http.MethodPost, "/v1/initialize", &stranger, nil)
		requireError(t, rec, http.StatusConflict, "already_initialized")

		rec = f.do(t, http.MethodGet, "/v1/owner", nil, nil)
		res := decode[OwnerResponse](t, rec)
		assert.True(t, res.Initialized)
		assert.Equal(t, owner, res.Owner)
	})

	t.Run("deposit", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/deposit", &stranger, DepositRequest{Value: "100"})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Equal(t, int64(100), f.ledger.BalanceOf(self).Int64())

		rec = f.do(t, http.MethodPost, "/v1/deposit", &stranger, DepositRequest{Value: "-1"})
		requireError(t, rec, http.StatusBadRequest, "invalid_value")
	})

	d := transferDescriptor(40, 1010)
	td, err := d.ToDescriptor()
	require.NoError(t, err)
	id := timelock.ComputeID(td)

	t.Run("queue", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/queue", &stranger, d)
		requireError(t, rec, http.StatusForbidden, "not_owner")

		rec = f.do(t, http.MethodPost, "/v1/queue", &owner, d)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, id, decode[TxResponse](t, rec).TxID)

		rec = f.do(t, http.MethodPost, "/v1/queue", &owner, d)
		e := requireError(t, rec, http.StatusConflict, "already_queued")
		assert.Equal(t, id.Hex(), e.Metadata["txId"])

		rec = f.do(t, http.MethodGet, "/v1/queued/"+id.Hex(), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[QueuedResponse](t, rec).Queued)

		rec = f.do(t, http.MethodPost, "/v1/txid", nil, d)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, decode[TxResponse](t, rec).TxID)
	})

	t.Run("queue outside of the delay window", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/queue", &owner, transferDescriptor(40, 2001))
		e := requireError(t, rec, http.StatusUnprocessableEntity, "timestamp_not_in_range")
		assert.Equal(t, map[string]string{"blockTimestamp": "1000", "timestamp": "2001"}, e.Metadata)
	})

	t.Run("execute", func(t *testing.T) {
		f.clock.SetTime(time.Unix(1009, 0))
		rec := f.do(t, http.MethodPost, "/v1/execute", &owner, d)
		e := requireError(t, rec, http.StatusUnprocessableEntity, "timestamp_not_passed")
		assert.Equal(t, "1009", e.Metadata["blockTimestamp"])

		f.clock.SetTime(time.Unix(1010, 0))
		rec = f.do(t, http.MethodPost, "/v1/execute", &owner, d)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(40), f.ledger.BalanceOf(target).Int64())
		assert.Equal(t, int64(60), f.ledger.BalanceOf(self).Int64())

		f.clock.SetTime(time.Unix(1500, 0))
		rec = f.do(t, http.MethodPost, "/v1/execute", &owner, d)
		requireError(t, rec, http.StatusConflict, "not_queued")

		rec = f.do(t, http.MethodGet, "/v1/queued/"+id.Hex(), nil, nil)
		assert.False(t, decode[QueuedResponse](t, rec).Queued)
	})

	t.Run("failed call", func(t *testing.T) {
		costly := transferDescriptor(1000, 1600)
		rec := f.do(t, http.MethodPost, "/v1/queue", &owner, costly)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		f.clock.SetTime(time.Unix(1600, 0))
		rec = f.do(t, http.MethodPost, "/v1/execute", &owner, costly)
		e := requireError(t, rec, http.StatusBadGateway, "tx_failed")
		assert.Contains(t, e.InnerError, "insufficient")
	})

	t.Run("cancel", func(t *testing.T) {
		c := transferDescriptor(1, 1700)
		rec := f.do(t, http.MethodPost, "/v1/queue", &owner, c)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodPost, "/v1/cancel", &owner, c)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodPost, "/v1/cancel", &owner, c)
		requireError(t, rec, http.StatusConflict, "not_queued")
	})

	t.Run("events", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/events", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[EventsResponse](t, rec)

		names := make([]string, len(res.Events))
		for i, ev := range res.Events {
			names[i] = ev.Name
		}
		assert.Equal(t, []string{"Queue", "Execute", "Queue", "Queue", "Cancel"}, names)
		assert.Equal(t, uint64(5), res.Next)

		require.NotNil(t, res.Events[1].Descriptor)
		assert.Equal(t, id, res.Events[1].TxID)
		assert.Equal(t, d, *res.Events[1].Descriptor)
		assert.Nil(t, res.Events[4].Descriptor)

		rec = f.do(t, http.MethodGet, "/v1/events?after=3&limit=1", nil, nil)
		res = decode[EventsResponse](t, rec)
		require.Len(t, res.Events, 1)
		assert.Equal(t, uint64(4), res.Next)
	})

	t.Run("request metrics", func(t *testing.T) {
		var rm metricdata.ResourceMetrics
		require.NoError(t, f.reader.Collect(t.Context(), &rm))
		require.Len(t, rm.ScopeMetrics, 1)
		require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
		assert.Equal(t, "timelock.api.requests", rm.ScopeMetrics[0].Metrics[0].Name)

		sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		outcomes := map[string]int64{}
		for _, dp := range sum.DataPoints {
			op, _ := dp.Attributes.Value("operation")
			out, _ := dp.Attributes.Value("outcome")
			outcomes[op.AsString()+"/"+out.AsString()] += dp.Value
		}
		assert.Equal(t, int64(1), outcomes["execute/execution"])
		assert.Equal(t, int64(1), outcomes["queue/authorization"])
		assert.Equal(t, int64(2), outcomes["execute/timing"]+outcomes["queue/timing"])
	})
}

func TestWebhookCallback(t *testing.T) {
	f := newFixture(t)
	api := httptest.NewServer(f.srv)
	defer api.Close()

	rec := f.do(t, http.MethodPost, "/v1/initialize", &owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	d := transferDescriptor(0, 1010)
	other := transferDescriptor(1, 1020)
	for _, q := range []Descriptor{d, other} {
		rec = f.do(t, http.MethodPost, "/v1/queue", &owner, q)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// While handling the call, the target cancels the other transaction
	token := f.token(t, owner)
	var cancelBody bytes.Buffer
	require.NoError(t, json.NewEncoder(&cancelBody).Encode(other))
	statuses := make(chan int, 1)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, api.URL+"/v1/cancel", &cancelBody)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Timelock-Reentry", r.Header.Get("X-Timelock-Reentry"))

		res, err := api.Client().Do(req)
		if err != nil {
			statuses <- 0
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = res.Body.Close()
		statuses <- res.StatusCode
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	// Without the re-entry token the callback would wait for the lock until the webhook times out
	f.dispatcher.Register(d.Target, &host.Webhook{URL: receiver.URL, Timeout: 5 * time.Second})

	f.clock.SetTime(time.Unix(1010, 0))
	start := time.Now()
	rec = f.do(t, http.MethodPost, "/v1/execute", &owner, d)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, http.StatusOK, <-statuses)

	otherTd, err := other.ToDescriptor()
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/v1/queued/"+otherTd.ID().Hex(), nil, nil)
	assert.False(t, decode[QueuedResponse](t, rec).Queued)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	t.Run("missing token", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/initialize", nil, nil)
		requireError(t, rec, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/initialize", nil)
		req.Header.Set("Authorization", "Basic "+f.token(t, owner))
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("replayed token", func(t *testing.T) {
		token := f.token(t, owner)
		send := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/v1/initialize", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			f.srv.ServeHTTP(rec, req)
			return rec
		}

		require.Equal(t, http.StatusOK, send().Code)
		requireError(t, send(), http.StatusUnauthorized, "token_replayed")
	})
}

func TestInvalidRequests(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/initialize", &owner, nil).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "empty body", method: http.MethodPost, path: "/v1/queue"},
		{name: "unknown field", method: http.MethodPost, path: "/v1/queue", body: `{"target":"0x00000000000000000000000000000000000000aa","func":"f()","timestamp":1010,"extra":1}`},
		{name: "invalid target", method: http.MethodPost, path: "/v1/queue", body: `{"target":"0x1234","func":"f()","timestamp":1010}`},
		{name: "value not decimal", method: http.MethodPost, path: "/v1/queue", body: `{"target":"0x00000000000000000000000000000000000000aa","value":"0x10","func":"f()","timestamp":1010}`},
		{name: "value too large", method: http.MethodPost, path: "/v1/execute", body: Descriptor{Target: target, Value: new(big.Int).Lsh(big.NewInt(1), 256).String(), Func: "f()", Timestamp: 1010}},
		{name: "data not hex", method: http.MethodPost, path: "/v1/cancel", body: Descriptor{Target: target, Func: "f()", Data: "0xzz", Timestamp: 1010}},
		{name: "trailing data", method: http.MethodPost, path: "/v1/queue", body: `{"target":"0x00000000000000000000000000000000000000aa","func":"f()","timestamp":1010} {}`},
		{name: "invalid tx ID", method: http.MethodGet, path: "/v1/queued/0x1234"},
		{name: "invalid after", method: http.MethodGet, path: "/v1/events?after=-1"},
		{name: "invalid limit", method: http.MethodGet, path: "/v1/events?limit=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caller *timelock.Address
			if tt.method == http.MethodPost {
				caller = &owner
			}
			rec := f.do(t, tt.method, tt.path, caller, tt.body)
			requireError(t, rec, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	f := newFixture(t)

	body := `{"target":"0x00000000000000000000000000000000000000aa","func":"f()","data":"0x` + strings.Repeat("00", 1<<20) + `","timestamp":1010}`
	rec := f.do(t, http.MethodPost, "/v1/txid", nil, body)
	e := requireError(t, rec, http.StatusBadRequest, "bad_request")
	assert.Contains(t, e.InnerError, "larger than")
}
