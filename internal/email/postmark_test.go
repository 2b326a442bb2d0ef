package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendInviteCode(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "https://nestling.test")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	err := client.SendInviteCode("grandma@example.com", "Alice", "Finn", "482913")
	if err != nil {
		t.Fatalf("send invite code: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "grandma@example.com" {
		t.Errorf("To = %q, want %q", received.To, "grandma@example.com")
	}
	if received.From != "noreply@example.com" {
		t.Errorf("From = %q, want %q", received.From, "noreply@example.com")
	}
	if received.Subject != "Alice invited you to follow Finn on Nestling" {
		t.Errorf("Subject = %q, want invite subject", received.Subject)
	}
	if !strings.Contains(received.TextBody, "482913") {
		t.Error("expected code in text body")
	}
	if !strings.Contains(received.TextBody, "https://nestling.test/invitations/accept?code=482913") {
		t.Error("expected accept link in text body")
	}
}

func TestSendInviteCodeNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com", "https://nestling.test")

	err := client.SendInviteCode("grandma@example.com", "Alice", "Finn", "482913")
	if err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestSendInviteCodeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", "https://nestling.test")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	err := client.SendInviteCode("grandma@example.com", "Alice", "Finn", "482913")
	if err == nil {
		t.Fatal("expected error for API failure")
	}
}

func TestConfigured(t *testing.T) {
	c1 := NewClient("token", "from@test.com", "https://test.com")
	if !c1.Configured() {
		t.Error("expected Configured() = true")
	}

	c2 := NewClient("", "from@test.com", "https://test.com")
	if c2.Configured() {
		t.Error("expected Configured() = false")
	}
}

// rewriteTransport redirects all requests to a test server URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target[len("http://"):]
	return t.base.RoundTrip(req)
}
