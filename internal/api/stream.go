package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// SSEEvent represents a Server-Sent Event.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// EventHandler is called for each SSE event. Returning an error ends the stream.
type EventHandler func(event SSEEvent) error

// StreamMessages subscribes to the campaign's push channel and calls handler
// for every event until the server closes the stream, ctx ends, or handler
// fails. It returns nil when the server closed the stream cleanly.
func (c *Client) StreamMessages(ctx context.Context, campaignID string, handler EventHandler) error {
	r := request{op: "open message stream", method: http.MethodGet, path: "/messages/stream/" + escape(campaignID), authed: true}
	httpReq, err := c.newRequest(ctx, &r)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return c.statusError(ctx, r, resp.StatusCode, body)
	}
	c.logger.Debug("message stream open", zap.String("campaign_id", campaignID))

	if err := parseSSE(resp.Body, handler); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// parseSSE parses Server-Sent Events from reader. Events without an event
// field are reported as "message".
func parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event SSEEvent

	emit := func() error {
		if event.Event == "" && event.Data == "" {
			return nil
		}
		if event.Event == "" {
			event.Event = domain.StreamEventMessage
		}
		err := handler(event)
		event = SSEEvent{}
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if err := emit(); err != nil {
				return err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if err := emit(); err != nil {
		return err
	}
	return scanner.Err()
}

// ErrNotReply is returned for push events that carry something other than an
// assistant reply, such as the user's own stored message.
var ErrNotReply = errors.New("event is not a reply")

// ParseReplyEvent parses the data of a push event into a Reply.
func ParseReplyEvent(data string) (domain.Reply, error) {
	if role := gjson.Get(data, "role").String(); role == string(domain.RoleUser) || role == string(domain.RoleSystem) {
		return domain.Reply{}, ErrNotReply
	}
	reply, err := domain.NormalizeReply([]byte(data))
	if err != nil {
		return domain.Reply{}, fmt.Errorf("failed to parse reply event: %w", err)
	}
	if reply.Content == "" {
		return domain.Reply{}, ErrNotReply
	}
	reply.Source = domain.SourcePush
	return reply, nil
}
