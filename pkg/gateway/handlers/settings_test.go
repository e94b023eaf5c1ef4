package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/livenotes/pkg/config"
)

func TestSettingsHandler_GetDefaults(t *testing.T) {
	rr := httptest.NewRecorder()
	SettingsHandler{Store: config.OpenSettings("", nil)}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/settings", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got config.Settings
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != config.DefaultSettings() {
		t.Fatalf("settings=%+v", got)
	}
}

func TestSettingsHandler_PutMergesOverCurrent(t *testing.T) {
	store := config.OpenSettings("", nil)
	h := SettingsHandler{Store: store}

	req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(`{"voice_response":true,"rate":1.5}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(`{"contextualize":true}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	want := config.Settings{VoiceResponse: true, Rate: 1.5, Contextualize: true}
	if got := store.Current(); got != want {
		t.Fatalf("settings=%+v, want %+v", got, want)
	}
}

func TestSettingsHandler_PutRejectsInvalid(t *testing.T) {
	store := config.OpenSettings("", nil)
	h := SettingsHandler{Store: store}

	cases := []struct {
		name string
		body string
	}{
		{"rate out of range", `{"rate":3}`},
		{"unknown field", `{"volume":1}`},
		{"malformed", `{"rate":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(tc.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), `"type":"invalid_request_error"`) {
				t.Fatalf("body=%q", rr.Body.String())
			}
		})
	}
	if got := store.Current(); got != config.DefaultSettings() {
		t.Fatalf("settings changed after rejected updates: %+v", got)
	}
}

func TestSettingsHandler_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	SettingsHandler{Store: config.OpenSettings("", nil)}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/settings", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != "GET, PUT" {
		t.Fatalf("Allow=%q", got)
	}
}
