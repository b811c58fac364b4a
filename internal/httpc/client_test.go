package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWithKey(t *testing.T) {
	t.Run("adds key", func(t *testing.T) {
		got, err := WithKey("https://vision.googleapis.com/v1/images:annotate", "abc")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "https://vision.googleapis.com/v1/images:annotate?key=abc" {
			t.Errorf("got %s", got)
		}
	})

	t.Run("keeps existing query", func(t *testing.T) {
		got, err := WithKey("http://localhost/translate?alt=json", "k")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "alt=json") || !strings.Contains(got, "key=k") {
			t.Errorf("got %s", got)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		got, _ := WithKey("http://localhost/x", "")
		if got != "http://localhost/x" {
			t.Errorf("got %s", got)
		}
	})
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %s", ct)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["hello"] != "world" {
			t.Errorf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := PostJSON(context.Background(), NewClient(DefaultTimeout), server.URL, map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"ascii", "hello", 3, "hel"},
		{"short", "hi", 3, "hi"},
		{"rune boundary", "añb", 2, "a"},
		{"whole rune", "añb", 3, "añ"},
		{"cjk", "出口", 4, "出"},
		{"zero", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.maxLen)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestErrorAttrs(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		attrs := ErrorAttrs(errors.New("dial failed"))
		if len(attrs) != 2 || attrs[0] != "error" {
			t.Errorf("attrs = %v", attrs)
		}
	})

	t.Run("wrapped api error", func(t *testing.T) {
		err := fmt.Errorf("scan: %w", &APIError{StatusCode: http.StatusTooManyRequests, Provider: "vision"})
		attrs := ErrorAttrs(err)

		got := map[string]any{}
		for i := 0; i+1 < len(attrs); i += 2 {
			got[attrs[i].(string)] = attrs[i+1]
		}
		if got["status"] != http.StatusTooManyRequests {
			t.Errorf("status = %v", got["status"])
		}
		if got["rate_limited"] != true || got["unauthorized"] != false || got["server_error"] != false {
			t.Errorf("classification = %v", got)
		}
	})
}

func TestCheckResponse(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}
		if err := CheckResponse("test", resp); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("google error envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
		}))
		defer server.Close()

		resp, err := http.Get(server.URL)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		err = CheckResponse("vision", resp)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("StatusCode = %d", apiErr.StatusCode)
		}
		if apiErr.Message != "API key not valid" {
			t.Errorf("Message = %q", apiErr.Message)
		}
		if !apiErr.IsUnauthorized() || apiErr.IsRateLimited() {
			t.Error("403 should be unauthorized only")
		}
	})

	t.Run("plain body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer server.Close()

		resp, err := http.Get(server.URL)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var apiErr *APIError
		if !errors.As(CheckResponse("translate", resp), &apiErr) {
			t.Fatal("expected *APIError")
		}
		if !apiErr.IsServerError() {
			t.Error("502 should be a server error")
		}
		if !strings.Contains(apiErr.Body, "upstream down") {
			t.Errorf("Body = %q", apiErr.Body)
		}
	})
}
