package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/clinicops/internal/auth"
)

type staticVerifier map[string]auth.Principal

func (v staticVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	p, ok := v[token]
	if !ok {
		return auth.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func TestRequireUser(t *testing.T) {
	verifier := staticVerifier{"tok": {UID: "u1", Email: "ana@clinic.test"}}
	var got auth.Principal
	handler := RequireUser(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name    string
		header  string
		query   string
		upgrade bool
		want    int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic tok", want: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer tok", want: http.StatusNoContent},
		{name: "query without upgrade", query: "tok", want: http.StatusUnauthorized},
		{name: "websocket query", query: "tok", upgrade: true, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got = auth.Principal{}
			target := "/stats"
			if tc.query != "" {
				target += "?access_token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.want == http.StatusNoContent && got.UID != "u1" {
				t.Fatalf("expected principal in context, got %+v", got)
			}
		})
	}
}
