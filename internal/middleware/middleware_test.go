package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestI18NDetectsLocale(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"explicit header", map[string]string{"X-Locale": "id-ID"}, "id"},
		{"accept language", map[string]string{"Accept-Language": "es-MX,es;q=0.9"}, "es"},
		{"unsupported falls back", map[string]string{"Accept-Language": "fr-FR"}, "en"},
		{"no headers", nil, "en"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			handler := I18N("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = LocaleFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Fatalf("locale = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitKeyedByAccount(t *testing.T) {
	handler := Account()(RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	status := func(account string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Account-Ref", account)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if status("acct-a") != http.StatusOK || status("acct-a") != http.StatusOK {
		t.Fatal("first two requests should pass")
	}
	if status("acct-a") != http.StatusTooManyRequests {
		t.Fatal("third request should be limited")
	}
	if status("acct-b") != http.StatusOK {
		t.Fatal("other accounts should be unaffected")
	}
}
