package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestStreamMessagesParsesSSE(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/stream/c1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Fatalf("unexpected accept header: %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: reply\ndata: {\"message_id\":\"x\",\"reply\":\"$10,000\"}\n\n")
		fmt.Fprint(w, "data: {\"message_id\":\"y\",\"reply\":\"ok\"}\n\n")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var events []SSEEvent
	err := client.StreamMessages(ctx, "c1", func(event SSEEvent) error {
		events = append(events, event)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != "reply" || events[1].Event != "message" {
		t.Fatalf("unexpected events: %+v", events)
	}

	reply, err := ParseReplyEvent(events[0].Data)
	if err != nil {
		t.Fatalf("ParseReplyEvent failed: %v", err)
	}
	if reply.CorrelationID != "x" || reply.Content != "$10,000" || reply.Source != "push" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestStreamMessagesUnauthorized(t *testing.T) {
	client, auth := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := client.StreamMessages(context.Background(), "c1", func(SSEEvent) error { return nil })
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if auth.expired.Load() != 1 {
		t.Fatalf("expected session expiry")
	}
}

func TestParseSSEMultilineData(t *testing.T) {
	input := "event: reply\n" +
		"id: 7\n" +
		"data: first line\n" +
		"data: second line\n\n"

	var events []SSEEvent
	if err := parseSSE(strings.NewReader(input), func(event SSEEvent) error {
		events = append(events, event)
		return nil
	}); err != nil {
		t.Fatalf("parseSSE failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Data != "first line\nsecond line" || events[0].ID != "7" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestParseSSEHandlerErrorStops(t *testing.T) {
	input := "data: a\n\ndata: b\n\n"
	calls := 0
	err := parseSSE(strings.NewReader(input), func(SSEEvent) error {
		calls++
		return fmt.Errorf("stop")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected stop after first event, calls=%d err=%v", calls, err)
	}
}

func TestParseReplyEventSkipsUserMessages(t *testing.T) {
	if _, err := ParseReplyEvent(`{"_id":"m1","role":"user","content":"hi"}`); !errors.Is(err, ErrNotReply) {
		t.Fatalf("expected ErrNotReply, got %v", err)
	}
	if _, err := ParseReplyEvent(`{"message_id":"m1"}`); !errors.Is(err, ErrNotReply) {
		t.Fatalf("expected ErrNotReply for empty content, got %v", err)
	}
	if _, err := ParseReplyEvent(`not json`); err == nil {
		t.Fatalf("expected parse error")
	}
}
