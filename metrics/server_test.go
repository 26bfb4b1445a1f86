package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MagicHoovy/Steve/metrics/counters"
)

func TestMetricsEndpoint(t *testing.T) {
	counters.ObserveFetch("ChargerSnapshot", "CDJ940009", "ok")
	srv := httptest.NewServer(NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `steve_fetch_total{charge_point_id="CDJ940009",entity="ChargerSnapshot",outcome="ok"}`) {
		t.Errorf("fetch counter not exported")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}
