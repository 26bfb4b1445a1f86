package steve

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MagicHoovy/Steve/models"
	"github.com/julienschmidt/httprouter"
)

const latestBody = `{
  "id": 17,
  "chargeBoxId": "CDJ940009",
  "connectorId": 1,
  "connectorStatus": "Charging",
  "meterValues": {
    "timestamp": "2025-01-01T10:00:00.000Z",
    "values": {
      "energy.active.import.register": {"value": "1534.2", "unit": "Wh"}
    }
  }
}`

// fakeSteve serves the latest transaction endpoint, checking credentials
func fakeSteve(t *testing.T, handle func(w http.ResponseWriter, id string)) *httptest.Server {
	t.Helper()
	router := httprouter.New()
	router.GET("/steve/api/v1/transactions/charger/:id/latest", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "12345" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("STEVE-API-KEY") != "key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		handle(w, params.ByName("id"))
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchLatest(t *testing.T) {
	srv := fakeSteve(t, func(w http.ResponseWriter, id string) {
		if id != "CDJ940009" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(latestBody))
	})

	client := New(srv.URL+"/steve/", "admin", "12345", "key", time.Second)
	data, err := client.Fetch(context.Background(), models.ChargerSnapshotKind(""), "CDJ940009")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	doc, ok := data.(map[string]interface{})
	if !ok {
		t.Fatalf("want JSON object, got %T", data)
	}
	if models.Document(doc).ConnectorStatus() != "Charging" {
		t.Errorf("unexpected status: %v", doc["connectorStatus"])
	}
}

func TestFetchStatuses(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantNotFnd bool
		wantStatus int
	}{
		{name: "not found is benign", status: http.StatusNotFound, wantNotFnd: true},
		{name: "server error", status: http.StatusInternalServerError, wantStatus: http.StatusInternalServerError},
		{name: "bad request", status: http.StatusBadRequest, wantStatus: http.StatusBadRequest},
		{name: "malformed json", status: http.StatusOK, body: `{"chargeBoxId":`, wantStatus: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeSteve(t, func(w http.ResponseWriter, id string) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			client := New(srv.URL+"/steve", "admin", "12345", "key", time.Second)
			_, err := client.Fetch(context.Background(), models.ChargerSnapshotKind(""), "CDJ940009")
			if tc.wantNotFnd {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("want ErrNotFound, got %v", err)
				}
				return
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("want FetchError, got %v", err)
			}
			if fetchErr.Status != tc.wantStatus || fetchErr.ChargerId != "CDJ940009" {
				t.Errorf("unexpected error context: %+v", fetchErr)
			}
		})
	}
}

func TestFetchWrongCredentials(t *testing.T) {
	srv := fakeSteve(t, func(w http.ResponseWriter, id string) {
		_, _ = w.Write([]byte(latestBody))
	})
	client := New(srv.URL+"/steve", "admin", "wrong", "key", time.Second)
	_, err := client.Fetch(context.Background(), models.ChargerSnapshotKind(""), "CDJ940009")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Status != http.StatusUnauthorized {
		t.Fatalf("want 401 FetchError, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := fakeSteve(t, func(w http.ResponseWriter, id string) {
		<-release
	})
	defer close(release)

	client := New(srv.URL+"/steve", "admin", "12345", "key", 50*time.Millisecond)
	started := time.Now()
	_, err := client.Fetch(context.Background(), models.ChargerSnapshotKind(""), "CDJ940009")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("want FetchError, got %v", err)
	}
	if time.Since(started) > 2*time.Second {
		t.Errorf("request was not bounded by the timeout")
	}
}

func TestFetchNonObjectIsReturnedAsIs(t *testing.T) {
	srv := fakeSteve(t, func(w http.ResponseWriter, id string) {
		_, _ = w.Write([]byte(`[1, 2, 3]`))
	})
	client := New(srv.URL+"/steve", "admin", "12345", "key", time.Second)
	data, err := client.Fetch(context.Background(), models.ChargerSnapshotKind(""), "CDJ940009")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := data.([]interface{}); !ok {
		t.Fatalf("want list, got %T", data)
	}
}

func TestFetchOversizeBody(t *testing.T) {
	srv := fakeSteve(t, func(w http.ResponseWriter, id string) {
		_, _ = w.Write([]byte(`{"chargeBoxId":"` + strings.Repeat("x", maxBodySize) + `"}`))
	})
	client := New(srv.URL+"/steve", "admin", "12345", "key", 5*time.Second)
	_, err := client.Fetch(context.Background(), models.ChargerSnapshotKind(""), "CDJ940009")
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("want ErrBodyTooLarge, got %v", err)
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Status != http.StatusOK {
		t.Errorf("unexpected error context: %v", err)
	}
}
