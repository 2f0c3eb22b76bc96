package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

// remoteWriteServer decodes remote write requests and hands their series to the test.
func remoteWriteServer(t *testing.T) (*httptest.Server, <-chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))
		received <- writeReq.Timeseries
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func TestPushRegistry_FlushSendsAllSeries(t *testing.T) {
	server, received := remoteWriteServer(t)
	registry := NewPushRegistry(PushConfig{
		URL:      server.URL + "/",
		Prefix:   "mountaineers",
		Job:      "refresh",
		Instance: "laptop",
	})
	registry.now = func() time.Time { return time.UnixMilli(1700000000000) }

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "refresh_duration_seconds"})
	require.NoError(t, err)
	gauge.Set(3)
	gauge.Set(4.5)

	runs, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "refresh_runs_total"}, []string{"result"})
	require.NoError(t, err)
	runs.With(prometheus.Labels{"result": "success"}).Inc()
	runs.With(prometheus.Labels{"result": "success"}).Inc()
	runs.With(prometheus.Labels{"result": "failure"}).Add(1)

	require.NoError(t, registry.Flush(context.Background()))

	select {
	case series := <-received:
		require.Len(t, series, 3)
		values := make(map[string]float64)
		for _, ts := range series {
			assert.Equal(t, "refresh", findLabel(ts.Labels, "job"))
			assert.Equal(t, "laptop", findLabel(ts.Labels, "instance"))
			require.Len(t, ts.Samples, 1)
			assert.Equal(t, int64(1700000000000), ts.Samples[0].Timestamp)
			values[findLabel(ts.Labels, "__name__")+"/"+findLabel(ts.Labels, "result")] = ts.Samples[0].Value
		}
		assert.Equal(t, map[string]float64{
			"mountaineers_refresh_duration_seconds/":  4.5,
			"mountaineers_refresh_runs_total/success": 2,
			"mountaineers_refresh_runs_total/failure": 1,
		}, values)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
	}
}

func TestPushRegistry_FlushWithoutValuesSendsNothing(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	assert.NoError(t, registry.Flush(context.Background()))
}

func TestPushRegistry_FlushReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	c, err := registry.NewCounter(prometheus.CounterOpts{Name: "c"})
	require.NoError(t, err)
	c.Inc()

	err = registry.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSeriesKey_IgnoresLabelOrder(t *testing.T) {
	a := seriesKey("m", map[string]string{"a": "1", "b": "2"})
	b := seriesKey("m", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, seriesKey("m", map[string]string{"a": "1"}))
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"}, []string{"kind"})
	require.NoError(t, err)
	counter.With(prometheus.Labels{"kind": "roster"}).Inc()

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "duplicate"})
	assert.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "test_gauge 42")
	assert.Contains(t, body, `test_counter{kind="roster"} 1`)
}

func TestNop(t *testing.T) {
	var reg Registry = Nop{}
	g, err := reg.NewGaugeVec(prometheus.GaugeOpts{Name: "g"}, []string{"l"})
	require.NoError(t, err)
	g.With(prometheus.Labels{"l": "x"}).Set(1)

	c, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "c"}, []string{"l"})
	require.NoError(t, err)
	c.With(prometheus.Labels{"l": "x"}).Inc()
}

func TestScrapeRegistry_Prefix(t *testing.T) {
	registry, err := NewScrapeRegistry(WithPrefix("mountaineers"))
	require.NoError(t, err)

	c, err := registry.NewCounter(prometheus.CounterOpts{Name: "refresh_runs_total", Help: "runs"})
	require.NoError(t, err)
	c.Add(2)

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "mountaineers_refresh_runs_total 2")
	assert.Contains(t, w.Body.String(), "mountaineers_server_start_time_seconds")
}
