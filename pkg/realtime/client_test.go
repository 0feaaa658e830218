package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("base URL: got %q, want %q", c.baseURL, DefaultBaseURL)
	}
	if c.session.Model != DefaultModel {
		t.Errorf("model: got %q, want %q", c.session.Model, DefaultModel)
	}
}

func TestEphemeralToken(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "sess_123",
			"client_secret": map[string]interface{}{
				"value": "ek_secret",
			},
		})
	}))
	defer server.Close()

	c, err := NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Session: SessionOptions{Model: "test-model", Voice: "verse"},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	token, err := c.ephemeralToken(context.Background())
	if err != nil {
		t.Fatalf("token exchange failed: %v", err)
	}
	if token != "ek_secret" {
		t.Errorf("token: got %q, want %q", token, "ek_secret")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization header: got %q", gotAuth)
	}
	if gotPath != "/sessions" {
		t.Errorf("path: got %q, want /sessions", gotPath)
	}
	if gotBody["model"] != "test-model" || gotBody["voice"] != "verse" {
		t.Errorf("request body: got %v", gotBody)
	}
}

func TestEphemeralTokenRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_api_key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	c, _ := NewClient(Config{APIKey: "sk-bad", BaseURL: server.URL})
	if _, err := c.ephemeralToken(context.Background()); err == nil {
		t.Fatal("expected error for rejected token request")
	}
}

func TestExchangeSDP(t *testing.T) {
	const answerSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/sdp" {
			t.Errorf("content type: got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ek_token" {
			t.Errorf("authorization: got %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(answerSDP))
	}))
	defer server.Close()

	c, _ := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	answer, err := c.exchangeSDP(context.Background(), "ek_token", "v=0\r\n")
	if err != nil {
		t.Fatalf("SDP exchange failed: %v", err)
	}
	if answer != answerSDP {
		t.Errorf("answer: got %q", answer)
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1/realtime", "wss://api.openai.com/v1/realtime?model=m"},
		{"http://localhost:8080/v1/realtime", "ws://localhost:8080/v1/realtime?model=m"},
	}

	for _, tt := range tests {
		c, _ := NewClient(Config{APIKey: "sk-test", BaseURL: tt.base, Session: SessionOptions{Model: "m"}})
		if got := c.websocketURL(); got != tt.want {
			t.Errorf("websocket URL for %q: got %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestWebsocketURLStripsTrailingSlash(t *testing.T) {
	c, _ := NewClient(Config{APIKey: "sk-test", BaseURL: "https://example.com/realtime/", Session: SessionOptions{Model: "m"}})
	if got := c.websocketURL(); strings.Contains(got, "realtime/?") {
		t.Errorf("trailing slash kept: %q", got)
	}
}
