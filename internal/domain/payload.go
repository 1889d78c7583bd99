package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload is returned when a backend payload cannot be mapped to a
// client type.
var ErrInvalidPayload = errors.New("invalid payload")

// The backend names the same fields differently depending on the endpoint
// (_id vs id vs message_id, reply vs response vs content). Everything that
// arrives from the network passes through the functions below before it reaches
// the reconciler.

// NormalizeMessage maps one backend message object to a Message. campaignID is
// used when the payload does not name its campaign.
func NormalizeMessage(raw []byte, campaignID string) (Message, error) {
	if !gjson.ValidBytes(raw) {
		return Message{}, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	return messageFromResult(gjson.ParseBytes(raw), campaignID)
}

// NormalizeMessages maps a list of backend messages. It accepts a bare array or
// an object wrapping it under "messages" or "data". Entries that cannot be
// mapped are skipped.
func NormalizeMessages(raw []byte, campaignID string) ([]Message, error) {
	list, err := listResult(raw, "messages", "data")
	if err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(list))
	for _, item := range list {
		msg, err := messageFromResult(item, campaignID)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// NormalizeReply maps one AI response payload (stream event data or poll item)
// to a Reply.
func NormalizeReply(raw []byte) (Reply, error) {
	if !gjson.ValidBytes(raw) {
		return Reply{}, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	return replyFromResult(gjson.ParseBytes(raw))
}

// NormalizeReplies maps a list of AI response payloads. It accepts a bare array
// or an object wrapping it under "responses" or "data".
func NormalizeReplies(raw []byte) ([]Reply, error) {
	list, err := listResult(raw, "responses", "data")
	if err != nil {
		return nil, err
	}
	replies := make([]Reply, 0, len(list))
	for _, item := range list {
		reply, err := replyFromResult(item)
		if err != nil {
			continue
		}
		replies = append(replies, reply)
	}
	return replies, nil
}

// SentMessageIdentity extracts the server identity from the POST /messages
// response: the stored id and the correlation id the reply will carry.
func SentMessageIdentity(raw []byte) (id, correlationID string, createdAt time.Time, err error) {
	if !gjson.ValidBytes(raw) {
		return "", "", time.Time{}, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	r := gjson.ParseBytes(raw)
	id = firstString(r, "_id", "id")
	correlationID = firstString(r, "message_id", "messageId")
	if correlationID == "" {
		correlationID = id
	}
	if id == "" {
		id = correlationID
	}
	if id == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: sent message has no id", ErrInvalidPayload)
	}
	return id, correlationID, timestamp(r, "createdAt", "created_at", "timestamp"), nil
}

func messageFromResult(r gjson.Result, campaignID string) (Message, error) {
	if !r.IsObject() {
		return Message{}, fmt.Errorf("%w: message is not an object", ErrInvalidPayload)
	}

	msg := Message{
		ID:            firstString(r, "_id", "id"),
		CorrelationID: firstString(r, "message_id", "messageId", "correlation_id"),
		Content:       firstString(r, "content", "reply", "response"),
		CreatedAt:     timestamp(r, "createdAt", "created_at", "timestamp"),
		CampaignID:    campaignOf(r),
	}
	if msg.CampaignID == "" {
		msg.CampaignID = campaignID
	}

	switch Role(strings.ToLower(r.Get("role").String())) {
	case RoleUser:
		msg.Role = RoleUser
	case RoleAssistant:
		msg.Role = RoleAssistant
	case RoleSystem:
		msg.Role = RoleSystem
	default:
		switch strings.ToLower(r.Get("sender").String()) {
		case "ai", "assistant", "bot":
			msg.Role = RoleAssistant
		default:
			msg.Role = RoleUser
		}
	}

	if msg.ID == "" {
		msg.ID = msg.CorrelationID
	}
	if msg.ID == "" {
		return Message{}, fmt.Errorf("%w: message has no id", ErrInvalidPayload)
	}
	if msg.Role == RoleUser && msg.CorrelationID == "" {
		msg.CorrelationID = msg.ID
	}
	return msg, nil
}

func replyFromResult(r gjson.Result) (Reply, error) {
	if !r.IsObject() {
		return Reply{}, fmt.Errorf("%w: reply is not an object", ErrInvalidPayload)
	}
	reply := Reply{
		CorrelationID: firstString(r, "message_id", "messageId", "correlation_id"),
		MessageID:     firstString(r, "_id", "id"),
		CampaignID:    campaignOf(r),
		Content:       firstString(r, "reply", "response", "content"),
		CreatedAt:     timestamp(r, "timestamp", "createdAt", "created_at"),
	}
	if reply.CorrelationID == "" && reply.MessageID == "" {
		return Reply{}, fmt.Errorf("%w: reply has no identity", ErrInvalidPayload)
	}
	return reply, nil
}

func listResult(raw []byte, keys ...string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	r := gjson.ParseBytes(raw)
	if r.IsArray() {
		return r.Array(), nil
	}
	if r.IsObject() {
		for _, key := range keys {
			if v := r.Get(key); v.IsArray() {
				return v.Array(), nil
			}
		}
	}
	if r.Type == gjson.Null {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: expected a list", ErrInvalidPayload)
}

func campaignOf(r gjson.Result) string {
	c := r.Get("campaign")
	if c.IsObject() {
		return firstString(c, "_id", "id")
	}
	if c.Exists() && c.Type == gjson.String {
		return c.String()
	}
	return firstString(r, "campaignId", "campaign_id")
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return v.String()
		}
	}
	return ""
}

func timestamp(r gjson.Result, paths ...string) time.Time {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.Number:
			return time.UnixMilli(v.Int()).UTC()
		case gjson.String:
			if t, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
