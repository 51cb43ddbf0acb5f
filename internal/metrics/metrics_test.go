package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordAPIRequestLabels(t *testing.T) {
	before := testutil.ToFloat64(apiRequests.WithLabelValues("GET", "/api/tickets/{id}", "404"))
	RecordAPIRequest("GET", "/api/tickets/{id}", 404, 20*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(apiRequests.WithLabelValues("GET", "/api/tickets/{id}", "404")))

	before = testutil.ToFloat64(apiRequests.WithLabelValues("POST", "/api/tickets", "error"))
	RecordAPIRequest("POST", "/api/tickets", 0, time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(apiRequests.WithLabelValues("POST", "/api/tickets", "error")))
}

func TestTeardownAndRemoteCounters(t *testing.T) {
	before := testutil.ToFloat64(sessionTeardowns.WithLabelValues("unauthorized"))
	RecordTeardown("unauthorized")
	require.Equal(t, before+1, testutil.ToFloat64(sessionTeardowns.WithLabelValues("unauthorized")))

	before = testutil.ToFloat64(remoteLoads.WithLabelValues("fallback"))
	RecordRemoteLoad("fallback")
	RecordRemoteLoad("fallback")
	require.Equal(t, before+2, testutil.ToFloat64(remoteLoads.WithLabelValues("fallback")))
}

func TestServeExposesRegistry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	RecordRemoteLoad("success")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	require.Contains(t, string(body), "flowbit_remote_loads_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
