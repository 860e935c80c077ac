package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func postJSON(t *testing.T, url string, body string, header http.Header) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func registerSession(t *testing.T, tg *testGateway) (string, string) {
	t.Helper()

	resp := postJSON(t, tg.srv.URL+"/live",
		`{"apiKey":"valid-key","streamKey":"abcd-efgh","domain":"https://example.com"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	return body["token"].(string), body["sessionId"].(string)
}

func bearer(tok string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func TestRegisterSession(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})

	tok, id := registerSession(t, tg)
	if tok == "" {
		t.Fatal("empty token")
	}
	if len(id) != 16 {
		t.Errorf("session id %q, want 16 hex chars", id)
	}
	if !tg.upstream.started {
		t.Error("upstream sender was not started")
	}
	if tg.sessions.Size() != 1 {
		t.Errorf("store size = %d, want 1", tg.sessions.Size())
	}

	claims, err := tg.gw.signer.Verify(tok)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.SessionID != id || claims.Domain != "https://example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})

	tok1, id1 := registerSession(t, tg)
	tok2, id2 := registerSession(t, tg)

	if id1 != id2 {
		t.Errorf("session ids differ: %q vs %q", id1, id2)
	}
	if tok1 != tok2 {
		t.Error("second registration minted a new token")
	}
	if tg.sessions.Size() != 1 {
		t.Errorf("store size = %d, want 1", tg.sessions.Size())
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})

	tests := []struct {
		name   string
		body   string
		status int
		errSub string
	}{
		{"missing fields", `{"apiKey":"valid-key"}`, http.StatusBadRequest, "required"},
		{"unknown key", `{"apiKey":"nope","streamKey":"s","domain":"d"}`, http.StatusUnauthorized, "unknown_key"},
		{"bad json", `{{{`, http.StatusBadRequest, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, tg.srv.URL+"/live", tt.body, nil)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body := decodeBody(t, resp)
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.errSub) {
				t.Errorf("error = %q, want substring %q", msg, tt.errSub)
			}
		})
	}
}

func TestRegisterRejectsRevokedKey(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})
	if err := tg.keys.Revoke(t.Context(), "valid-key"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	resp := postJSON(t, tg.srv.URL+"/live",
		`{"apiKey":"valid-key","streamKey":"s","domain":"d"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "revoked") {
		t.Errorf("error = %q, want revoked reason", msg)
	}
}

func TestSessionStatus(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})
	tok, id := registerSession(t, tg)

	tg.sessions.SetSequence(id, 42)
	tg.sessions.SetSyncOffset(id, 17)

	req, _ := http.NewRequest(http.MethodGet, tg.srv.URL+"/live", nil)
	req.Header = bearer(tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["sequence"].(float64) != 42 || body["syncOffset"].(float64) != 17 {
		t.Errorf("body = %v", body)
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})

	resp, err := http.Get(tg.srv.URL + "/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no header status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, tg.srv.URL+"/live", nil)
	req.Header = bearer("not.a.token")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp2.StatusCode)
	}
}

func TestRemoveSession(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})
	tok, id := registerSession(t, tg)

	req, _ := http.NewRequest(http.MethodDelete, tg.srv.URL+"/live", nil)
	req.Header = bearer(tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["removed"] != true || body["sessionId"] != id {
		t.Errorf("body = %v", body)
	}
	if !tg.upstream.ended {
		t.Error("upstream sender was not ended")
	}
	if tg.sessions.Size() != 0 {
		t.Errorf("store size = %d, want 0", tg.sessions.Size())
	}

	// The token still verifies but the session is gone.
	req2, _ := http.NewRequest(http.MethodDelete, tg.srv.URL+"/live", nil)
	req2.Header = bearer(tok)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp2.StatusCode)
	}
}

func TestSyncUpdatesOffset(t *testing.T) {
	t.Parallel()
	tg := newTestGateway(t, testGatewayOpts{validKeys: []string{"valid-key"}})
	tok, id := registerSession(t, tg)

	resp := postJSON(t, tg.srv.URL+"/sync", "", bearer(tok))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)

	offset, ok := body["syncOffset"].(float64)
	if !ok {
		t.Fatalf("syncOffset missing: %v", body)
	}
	rtt := body["roundTripTime"].(float64)
	if offset > rtt {
		t.Errorf("offset %v exceeds rtt %v", offset, rtt)
	}

	sess := tg.sessions.Get(id)
	if sess == nil {
		t.Fatal("session disappeared")
	}
	if float64(sess.SyncOffset) != offset {
		t.Errorf("stored offset = %d, response %v", sess.SyncOffset, offset)
	}
}
