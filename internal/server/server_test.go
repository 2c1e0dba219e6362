package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/domain"
)

type stubHandler struct {
	jobs    chan domain.Job
	release chan struct{}
}

func (h *stubHandler) Handle(_ context.Context, job domain.Job) domain.Result {
	if h.jobs != nil {
		h.jobs <- job
	}
	if h.release != nil {
		<-h.release
	}
	if job.Input.Action == domain.ActionHealthCheck {
		return domain.Result{ID: "generated", Status: domain.StatusSuccess, Output: map[string]bool{"gpu_available": false}}
	}
	return domain.Result{ID: job.ID, Status: domain.StatusError, Error: "Unknown action: " + job.Input.Action,
		ErrorType: domain.KindRouting, AvailableActions: domain.AvailableActions()}
}

func newTestServer(t *testing.T, h JobHandler, gatherer prometheus.Gatherer) *httptest.Server {
	t.Helper()
	srv := New(h, gatherer, DefaultConfig(), zap.NewNop())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func decodeResult(t *testing.T, resp *http.Response) domain.Result {
	t.Helper()
	defer resp.Body.Close()
	var res domain.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestRunSync(t *testing.T) {
	ts := newTestServer(t, &stubHandler{}, nil)

	resp, err := http.Post(ts.URL+"/runsync", "application/json",
		strings.NewReader(`{"id":"j1","input":{"action":"bogus"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	res := decodeResult(t, resp)
	assert.Equal(t, "j1", res.ID)
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, domain.AvailableActions(), res.AvailableActions)
}

func TestRunSync_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, &stubHandler{}, nil)

	resp, err := http.Post(ts.URL+"/runsync", "application/json", strings.NewReader(`{"input":`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	res := decodeResult(t, resp)
	assert.Equal(t, domain.KindValidation, res.ErrorType)
	assert.Contains(t, res.Error, "invalid job document")
}

func TestRunSync_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &stubHandler{}, nil)

	resp, err := http.Get(ts.URL + "/runsync")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	h := &stubHandler{jobs: make(chan domain.Job, 1)}
	ts := newTestServer(t, h, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	res := decodeResult(t, resp)

	assert.Equal(t, domain.StatusSuccess, res.Status)
	job := <-h.jobs
	assert.Equal(t, domain.ActionHealthCheck, job.Input.Action)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "stylemesh_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	ts := newTestServer(t, &stubHandler{}, reg)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stylemesh_test_total 1")

	ts = newTestServer(t, &stubHandler{}, nil)
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunSync_ConcurrencyBound(t *testing.T) {
	h := &stubHandler{jobs: make(chan domain.Job, 1), release: make(chan struct{})}
	ts := newTestServer(t, h, nil)

	first := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/runsync", "application/json", strings.NewReader(`{"id":"a","input":{"action":"x"}}`))
		if err == nil {
			first <- resp
		}
		close(first)
	}()
	<-h.jobs

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/runsync",
		strings.NewReader(`{"id":"b","input":{"action":"x"}}`))
	require.NoError(t, err)
	_, err = http.DefaultClient.Do(req)
	assert.Error(t, err)

	close(h.release)
	resp, ok := <-first
	require.True(t, ok)
	res := decodeResult(t, resp)
	assert.Equal(t, "a", res.ID)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(&stubHandler{}, nil, DefaultConfig(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

type panicHandler struct{}

func (panicHandler) Handle(context.Context, domain.Job) domain.Result {
	panic("handler exploded")
}

func TestRecovery_RespondsWithResultJSON(t *testing.T) {
	ts := newTestServer(t, panicHandler{}, nil)

	resp, err := http.Post(ts.URL+"/runsync", "application/json", strings.NewReader(`{"input":{"action":"health_check"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	res := decodeResult(t, resp)
	assert.Equal(t, domain.StatusError, res.Status)
	assert.Equal(t, domain.KindRuntime, res.ErrorType)
	assert.Equal(t, "internal server error", res.Error)
}

type stubHistory struct {
	records map[string]*domain.JobRecord
	err     error
}

func (h *stubHistory) Get(_ context.Context, id string) (*domain.JobRecord, error) {
	if h.err != nil {
		return nil, h.err
	}
	return h.records[id], nil
}

func newHistoryServer(t *testing.T, history HistoryReader) *httptest.Server {
	t.Helper()
	srv := New(&stubHandler{}, nil, DefaultConfig(), zap.NewNop()).WithHistory(history)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestJobHistory(t *testing.T) {
	ts := newHistoryServer(t, &stubHistory{records: map[string]*domain.JobRecord{
		"j1": {ID: "j1", Action: domain.ActionHealthCheck, Status: domain.StatusSuccess, DurationMS: 4},
	}})

	resp, err := http.Get(ts.URL + "/jobs/j1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rec domain.JobRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "j1", rec.ID)
	assert.Equal(t, domain.ActionHealthCheck, rec.Action)
	assert.Equal(t, int64(4), rec.DurationMS)

	resp, err = http.Get(ts.URL + "/jobs/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	res := decodeResult(t, resp)
	assert.Contains(t, res.Error, "job not found: missing")
}

func TestJobHistory_ReadFailure(t *testing.T) {
	ts := newHistoryServer(t, &stubHistory{err: assert.AnError})

	resp, err := http.Get(ts.URL + "/jobs/j1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	res := decodeResult(t, resp)
	assert.Equal(t, domain.KindDependency, res.ErrorType)
}

func TestJobHistory_NotServedWithoutHistory(t *testing.T) {
	ts := newTestServer(t, &stubHandler{}, nil)

	resp, err := http.Get(ts.URL + "/jobs/j1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
