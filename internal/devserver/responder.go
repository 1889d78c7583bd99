package devserver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// Responder produces canned assistant replies.
type Responder struct{}

// NewResponder creates a responder.
func NewResponder() *Responder {
	return &Responder{}
}

// Reply answers prompt in the context of campaign.
func (r *Responder) Reply(campaign *domain.Campaign, prompt string) string {
	lower := strings.ToLower(prompt)
	if campaign != nil {
		switch {
		case strings.Contains(lower, "budget"):
			return formatDollars(campaign.Budget)
		case strings.Contains(lower, "goal") && campaign.Goals != "":
			return fmt.Sprintf("The goals of %s are: %s", campaign.Name, campaign.Goals)
		case strings.Contains(lower, "audience") && campaign.Audience != "":
			return fmt.Sprintf("%s targets %s.", campaign.Name, campaign.Audience)
		case strings.Contains(lower, "channel") && campaign.Channels != "":
			return fmt.Sprintf("%s runs on %s.", campaign.Name, campaign.Channels)
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return "[MOCK] This is a mock response from the assistant."
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(prompt, 100))
}

// formatDollars renders an amount as "$10,000" or "$1,234.50".
func formatDollars(v float64) string {
	neg := v < 0
	v = math.Abs(v)
	whole := int64(v)
	cents := int64(math.Round((v - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if cents > 0 {
		fmt.Fprintf(&b, ".%02d", cents)
	}
	return b.String()
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
