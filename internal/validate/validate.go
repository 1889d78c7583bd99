// Package validate checks form input locally before it is sent to the backend.
// Rules are written in Rego and evaluated with OPA.
package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// Kind names the form being checked.
type Kind string

const (
	KindSignup         Kind = "signup"
	KindLogin          Kind = "login"
	KindCampaign       Kind = "campaign"
	KindProfile        Kind = "profile"
	KindBrand          Kind = "brand"
	KindProfilePicture Kind = "profile_picture"
)

// MaxPictureBytes is the largest profile picture accepted.
const MaxPictureBytes = 5 << 20

// Error lists the violations that block a request.
type Error struct {
	Kind       Kind
	Violations []string
}

func (e *Error) Error() string {
	return strings.Join(e.Violations, "; ")
}

// Validator evaluates the form policy.
type Validator struct {
	query rego.PreparedEvalQuery
}

// New creates a validator with DefaultPolicy.
func New(ctx context.Context) (*Validator, error) {
	return NewWithPolicy(ctx, DefaultPolicy)
}

// NewWithPolicy creates a validator with the given policy module. The module
// must define data.marketa.validate.deny as a set of strings.
func NewWithPolicy(ctx context.Context, policy string) (*Validator, error) {
	r := rego.New(
		rego.Query("data.marketa.validate.deny"),
		rego.Module("validate.rego", policy),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Validator{query: query}, nil
}

// Check evaluates fields for kind. It returns *Error when the policy denies
// the input, nil when it may be sent.
func (v *Validator) Check(ctx context.Context, kind Kind, fields map[string]any) error {
	switch kind {
	case KindSignup, KindLogin, KindCampaign, KindProfile, KindBrand, KindProfilePicture:
	default:
		return fmt.Errorf("unknown form kind %q", kind)
	}

	input := map[string]any{"kind": string(kind), "fields": fields}
	results, err := v.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil
	}

	set, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	if len(set) == 0 {
		return nil
	}
	violations := make([]string, 0, len(set))
	for _, item := range set {
		violations = append(violations, fmt.Sprint(item))
	}
	sort.Strings(violations)
	return &Error{Kind: kind, Violations: violations}
}

// Signup checks a signup form.
func (v *Validator) Signup(ctx context.Context, req domain.SignupRequest) error {
	return v.Check(ctx, KindSignup, map[string]any{
		"username": req.Username,
		"name":     req.Name,
		"email":    req.Email,
		"password": req.Password,
	})
}

// Login checks a login form.
func (v *Validator) Login(ctx context.Context, req domain.LoginRequest) error {
	return v.Check(ctx, KindLogin, map[string]any{
		"email":    req.Email,
		"password": req.Password,
	})
}

// Campaign checks the campaign editor form.
func (v *Validator) Campaign(ctx context.Context, c domain.Campaign) error {
	return v.Check(ctx, KindCampaign, map[string]any{
		"campaign_name": c.Name,
		"status":        c.Status,
		"budget":        c.Budget,
		"start_date":    formatDate(c.StartDate),
		"end_date":      formatDate(c.EndDate),
	})
}

// Profile checks the settings form.
func (v *Validator) Profile(ctx context.Context, p domain.ProfileUpdate) error {
	return v.Check(ctx, KindProfile, map[string]any{
		"name":     p.Name,
		"username": p.Username,
		"email":    p.Email,
	})
}

// Brand checks the onboarding brand form.
func (v *Validator) Brand(ctx context.Context, b domain.Brand) error {
	return v.Check(ctx, KindBrand, map[string]any{
		"brand_name":          b.BrandName,
		"product_description": b.ProductDescription,
		"target_audience":     b.TargetAudience,
	})
}

// ProfilePicture checks an upload's detected MIME type and size.
func (v *Validator) ProfilePicture(ctx context.Context, contentType string, size int64) error {
	return v.Check(ctx, KindProfilePicture, map[string]any{
		"content_type": contentType,
		"size":         size,
	})
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
