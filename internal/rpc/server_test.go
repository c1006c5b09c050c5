package rpc_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/axonhq/axon/internal/axon"
	"github.com/axonhq/axon/internal/capability"
	"github.com/axonhq/axon/internal/rpc"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*rpc.Client, *axon.Service) {
	t.Helper()

	svc, err := axon.Open(t.TempDir())
	if err != nil {
		t.Fatalf("axon.Open: %v", err)
	}

	t.Cleanup(func() { _ = svc.Close() })

	grants := capability.Table{
		testToken: capability.NewSet("axon:get", "axon:has", "axon:upload"),
	}

	server := rpc.NewServer(svc, grants, nil)

	httpServer := httptest.NewServer(http.HandlerFunc(server.ServeHTTP))
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	client, err := rpc.Dial(wsURL, testToken)
	if err != nil {
		t.Fatalf("rpc.Dial: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client, svc
}

func TestClientPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t)

	data := []byte("hello over the wire")

	size, digestHex, err := client.Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if size != uint64(len(data)) {
		t.Fatalf("Put size = %d, want %d", size, len(data))
	}

	got, err := client.Get(digestHex)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(got) != string(data) {
		t.Fatalf("Get() = %q, want %q", got, data)
	}

	has, err := client.Has(digestHex)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}

	if !has {
		t.Fatal("Has() = false after Put")
	}
}

func TestClientMetricsReflectsPuts(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t)

	if _, _, err := client.Put([]byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, _, err := client.Put([]byte("b")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	counters, err := client.Metrics()
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}

	if counters["file:count"] != 2 {
		t.Fatalf("file:count = %d, want 2", counters["file:count"])
	}
}

func TestClientGetUnknownDigestReturnsError(t *testing.T) {
	t.Parallel()

	client, _ := newTestServer(t)

	_, err := client.Get(strings.Repeat("00", 32))
	if err == nil {
		t.Fatal("Get(unknown digest) should error")
	}
}

func TestServerRejectsMissingToken(t *testing.T) {
	t.Parallel()

	svc, err := axon.Open(t.TempDir())
	if err != nil {
		t.Fatalf("axon.Open: %v", err)
	}

	t.Cleanup(func() { _ = svc.Close() })

	server := rpc.NewServer(svc, capability.Table{}, nil)

	httpServer := httptest.NewServer(http.HandlerFunc(server.ServeHTTP))
	t.Cleanup(httpServer.Close)

	resp, err := http.Get(httpServer.URL) //nolint:gosec,noctx // test-only request
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
