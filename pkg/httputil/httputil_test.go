package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "valid bearer token", header: "Bearer abc123", want: "abc123"},
		{name: "case insensitive", header: "bearer xyz789", want: "xyz789"},
		{name: "with extra spaces", header: "Bearer   token-with-spaces  ", want: "token-with-spaces"},
		{name: "no bearer scheme", header: "Basic abc123", want: ""},
		{name: "empty header", header: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := ExtractBearerToken(req); got != tt.want {
				t.Errorf("ExtractBearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireBearer(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name   string
		token  string
		path   string
		header string
		want   int
	}{
		{name: "matching token", token: "k", path: "/logs", header: "Bearer k", want: http.StatusTeapot},
		{name: "wrong token", token: "k", path: "/logs", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "missing header", token: "k", path: "/logs", want: http.StatusUnauthorized},
		{name: "exempt path", token: "k", path: "/health", want: http.StatusTeapot},
		{name: "check disabled", token: "", path: "/logs", want: http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireBearer(tt.token, "/health")(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Code == http.StatusUnauthorized {
				var body ErrorBody
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if body.Code != CodeUnauthorized {
					t.Errorf("code = %q, want %q", body.Code, CodeUnauthorized)
				}
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, CodeNotFound, "log stream not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `{"code":"not_found","message":"log stream not found"}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"errors"}`},
		{name: "invalid json", body: `{invalid}`, wantErr: true},
		{name: "unknown field", body: `{"name":"x","extra":1}`, wantErr: true},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSON(req, &p)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueryList(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{query: "ids=a,b", want: []string{"a", "b"}},
		{query: "ids=%20a%20,,b,", want: []string{"a", "b"}},
		{query: "ids=", want: nil},
		{query: "", want: nil},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		if got := QueryList(req, "ids"); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("QueryList(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestQueryPositiveInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 100},
		{query: "limit=5", want: 5},
		{query: "limit=0", wantErr: true},
		{query: "limit=-3", wantErr: true},
		{query: "limit=ten", wantErr: true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := QueryPositiveInt(req, "limit", 100)
		if (err != nil) != tt.wantErr {
			t.Errorf("QueryPositiveInt(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("QueryPositiveInt(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
