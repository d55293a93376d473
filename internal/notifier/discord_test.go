package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var received map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode webhook payload: %v", err)
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := &DiscordNotifier{WebhookURL: server.URL, Username: "mediafetch"}

	if err := n.Notify(context.Background(), "✅ Download finished: clip (abc123)"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if received["content"] != "✅ Download finished: clip (abc123)" {
		t.Errorf("content = %q, want the notification text", received["content"])
	}

	if received["username"] != "mediafetch" {
		t.Errorf("username = %q, want mediafetch", received["username"])
	}
}

func TestDiscordNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := &DiscordNotifier{WebhookURL: server.URL}

	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("Notify() succeeded against a failing webhook, want error")
	}
}

func TestDiscordNotifier_MissingURL(t *testing.T) {
	n := &DiscordNotifier{}

	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("Notify() with no webhook URL succeeded, want error")
	}
}
