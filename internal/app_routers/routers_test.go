package approuters

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abhigit-saha/hack36-sub000/internal/configuration"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

func newContainer(t *testing.T) *configuration.Container {
	t.Helper()
	cfg := configuration.Default()
	cfg.Store.Driver = "memory"
	cfg.Log.Level = "error"

	c, err := configuration.BuildContainer(&cfg)
	if err != nil {
		t.Fatalf("BuildContainer: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAppRouter_HealthAndFacade(t *testing.T) {
	c := newContainer(t)
	router := NewAppRouter(c)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}

	body, _ := json.Marshal(map[string]string{"doctor_id": "d1", "patient_id": "p1"})
	req := httptest.NewRequest(http.MethodPost, "/chat/api/conversations/initialize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "conversation_id") {
		t.Fatalf("initialize: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/api/doctors/d1/conversations", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
}

func TestAppRouter_CORSPreflight(t *testing.T) {
	router := NewAppRouter(newContainer(t))

	req := httptest.NewRequest(http.MethodOptions, "/chat/api/conversations/initialize", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://clinic.example" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestSocketMux_MonitorSeesConnection(t *testing.T) {
	c := newContainer(t)
	c.Hub.Start()

	srv := httptest.NewServer(NewSocketMux(c))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	router := NewAppRouter(c)
	deadline := time.Now().Add(3 * time.Second)
	for {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/api/monitor/stats", nil))
		var resp struct {
			ResponseBody model.MonitorResponse
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode stats: %v", err)
		}
		if resp.ResponseBody.Connections.TotalConnected == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("monitor never saw the connection: %s", w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
