package httpx

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewClientProxyDisablesKeepAlive(t *testing.T) {
	client, err := NewClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	tr, ok := client.Transport.(*Transport)
	if !ok {
		t.Fatalf("expected *Transport, got %T", client.Transport)
	}
	if tr.Base.Proxy == nil || !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("expected proxy with keep-alives disabled, got %+v", tr)
	}
}

func TestNewClientWithoutProxy(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	tr := client.Transport.(*Transport)
	if tr.Base.Proxy != nil || tr.Base.DisableKeepAlives {
		t.Fatalf("expected direct keep-alive transport")
	}
	if tr.RetryMax != defaultRetryMax {
		t.Fatalf("expected default retries, got %d", tr.RetryMax)
	}
}

func TestNewClientRejectsInvalidProxy(t *testing.T) {
	if _, err := NewClient(Options{ProxyURL: "http://[::1"}); err == nil {
		t.Fatal("expected invalid proxy error")
	}
}

func TestTransportSetsUserAgent(t *testing.T) {
	var seen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("User-Agent"))
	}))
	defer server.Close()

	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	ua, _ := seen.Load().(string)
	if !strings.HasPrefix(ua, "Mozilla/5.0") {
		t.Fatalf("expected pooled user agent, got %q", ua)
	}
}

func TestTransportRetriesGetOnConnectionError(t *testing.T) {
	var attempts atomic.Int32
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			attempts.Add(1)
			conn.Close()
		}
	}()
	defer listener.Close()

	client, err := NewClient(Options{RetryMax: 2})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Get("http://" + listener.Addr().String()); err == nil {
		t.Fatal("expected error from closed connections")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}
