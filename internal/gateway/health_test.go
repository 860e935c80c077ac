package gateway

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})
	registerSession(t, tg)

	resp, err := http.Get(tg.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
	if body["activeSessions"].(float64) != 1 {
		t.Errorf("activeSessions = %v, want 1", body["activeSessions"])
	}
	if body["uptime"].(float64) < 0 {
		t.Errorf("uptime = %v", body["uptime"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})
	tok, _ := registerSession(t, tg)

	resp := postJSON(t, tg.srv.URL+"/captions", `{"captions":[{"text":"hello"}]}`, bearer(tok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("caption status = %d", resp.StatusCode)
	}

	metricsResp, err := http.Get(tg.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer metricsResp.Body.Close()

	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", metricsResp.StatusCode)
	}
	raw, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	out := string(raw)

	for _, want := range []string{
		"livecap_captions_sent_total 1",
		"livecap_sessions_registered_total 1",
		"livecap_active_sessions 1",
		"livecap_http_requests_total",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
