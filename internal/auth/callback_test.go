package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth/flow"
)

// fakeTokenEndpoint mimics the provider's code exchange. Codes other than
// "good-code" are rejected.
func fakeTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.FormValue("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCallbackFixture(t *testing.T) (*oauth2.Config, *flow.Registry, http.HandlerFunc) {
	t.Helper()
	srv := fakeTokenEndpoint(t)
	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/oauth2callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
	}
	reg := flow.NewRegistry(0)
	return cfg, reg, HandleCallback(cfg, reg)
}

func doCallback(handler http.HandlerFunc, params url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/oauth2callback?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestCallbackSuccessCompletesWaiter(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	state, ch := reg.Register("shop@example.com")

	w := doCallback(handler, url.Values{"state": {state}, "code": {"good-code"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Auth-Error"); got != "" {
		t.Fatalf("success page carries error kind %q", got)
	}

	select {
	case out := <-ch:
		if out.Err != nil {
			t.Fatalf("waiter got error: %v", out.Err)
		}
		if out.Token.AccessToken != "at-1" || out.Token.RefreshToken != "rt-1" {
			t.Fatalf("waiter got token %+v", out.Token)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never completed")
	}
}

func TestCallbackSecondDeliveryIsCorrelationMiss(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	state, ch := reg.Register("shop@example.com")

	doCallback(handler, url.Values{"state": {state}, "code": {"good-code"}})
	<-ch

	w := doCallback(handler, url.Values{"state": {state}, "code": {"good-code"}})
	if got := w.Header().Get("X-Auth-Error"); got != "unknown_state" {
		t.Fatalf("expected unknown_state, got %q", got)
	}
}

func TestCallbackErrorKinds(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	registered, _ := reg.Register("shop@example.com")

	tests := []struct {
		name   string
		params url.Values
		kind   string
	}{
		{
			name:   "provider error",
			params: url.Values{"state": {registered}, "error": {"access_denied"}},
			kind:   "provider",
		},
		{
			name:   "undecodable state",
			params: url.Values{"state": {"%%%garbage"}, "code": {"good-code"}},
			kind:   "bad_state",
		},
		{
			name:   "missing state",
			params: url.Values{"code": {"good-code"}},
			kind:   "bad_state",
		},
		{
			name:   "unknown state",
			params: url.Values{"state": {flow.EncodeState("nobody@example.com")}, "code": {"good-code"}},
			kind:   "unknown_state",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doCallback(handler, tt.params)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := w.Header().Get("X-Auth-Error"); got != tt.kind {
				t.Fatalf("expected kind %q, got %q", tt.kind, got)
			}
		})
	}
}

func TestCallbackMissingCode(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	state, _ := reg.Register("shop@example.com")

	w := doCallback(handler, url.Values{"state": {state}})
	if got := w.Header().Get("X-Auth-Error"); got != "missing_code" {
		t.Fatalf("expected missing_code, got %q", got)
	}
	// The flow stays pending; the user can retry from the same consent URL.
	if reg.Pending() != 1 {
		t.Fatalf("missing code must not resolve the flow, got %d pending", reg.Pending())
	}
}

func TestCallbackProviderErrorIsEscaped(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	state, _ := reg.Register("shop@example.com")

	w := doCallback(handler, url.Values{
		"state": {state},
		"error": {"<script>alert(1)</script>"},
	})
	if got := w.Header().Get("X-Auth-Error"); got != "provider" {
		t.Fatalf("expected provider kind, got %q", got)
	}
	body := w.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("provider error reflected into HTML unescaped")
	}
	if !strings.Contains(body, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Fatal("escaped provider error missing from page")
	}
}

func TestCallbackProviderErrorFailsWaiter(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	state, ch := reg.Register("shop@example.com")

	doCallback(handler, url.Values{"state": {state}, "error": {"access_denied"}})

	select {
	case out := <-ch:
		if out.Err == nil {
			t.Fatal("expected waiter failure on provider error")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved")
	}
}

func TestCallbackExchangeFailureFailsWaiter(t *testing.T) {
	_, reg, handler := newCallbackFixture(t)
	state, ch := reg.Register("shop@example.com")

	w := doCallback(handler, url.Values{"state": {state}, "code": {"bad-code"}})
	if got := w.Header().Get("X-Auth-Error"); got != "exchange" {
		t.Fatalf("expected exchange, got %q", got)
	}

	select {
	case out := <-ch:
		if out.Err == nil {
			t.Fatal("expected waiter failure on exchange rejection")
		}
		if errors.Is(out.Err, flow.ErrTimeout) {
			t.Fatal("exchange failure must be distinct from timeout")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved")
	}
}
