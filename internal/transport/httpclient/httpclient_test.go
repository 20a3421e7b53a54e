package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDecodeRelayStatus(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
		ok   bool
	}{
		{"flat output", `{"output": true}`, true, true},
		{"flat status", `{"status": false}`, false, true},
		{"flat state on", `{"state": "ON"}`, true, true},
		{"flat state off", `{"state": "off"}`, false, true},
		{"nested switch", `{"switch:0": {"output": true}}`, true, true},
		{"unrecognised", `{"foo": "bar"}`, false, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			on, ok := DecodeRelayStatus([]byte(c.body))
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && on != c.want {
				t.Fatalf("on = %v, want %v", on, c.want)
			}
		})
	}
}

func TestVentilatorRelay_SetAndStatus(t *testing.T) {
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/relay/0" && r.URL.RawQuery != "" {
			lastQuery = r.URL.RawQuery
			w.Write([]byte(`{"ison": true}`))
			return
		}
		w.Write([]byte(`{"output": true}`))
	}))
	defer srv.Close()

	relay := NewVentilatorRelay(strings.TrimPrefix(srv.URL, "http://"), time.Second)

	if err := relay.Set(context.Background(), true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if lastQuery != "turn=on" {
		t.Fatalf("expected turn=on query, got %q", lastQuery)
	}

	on, err := relay.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !on {
		t.Fatal("expected relay on")
	}
}

func TestVentilatorRelay_StatusUnrecognisedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"garbage": 1}`))
	}))
	defer srv.Close()

	relay := NewVentilatorRelay(strings.TrimPrefix(srv.URL, "http://"), time.Second)
	if _, err := relay.Status(context.Background()); err == nil {
		t.Fatal("expected error for unrecognised payload")
	}
}

func TestNotifier_SendText(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, time.Second)
	if err := notifier.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if received["text"] != "hello" {
		t.Fatalf("expected body text=hello, got %+v", received)
	}
}

func TestNotifier_SendTextServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, time.Second)
	if err := notifier.SendText(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
