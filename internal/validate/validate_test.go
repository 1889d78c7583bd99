package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arunshreyas/Marketa/internal/domain"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(context.Background())
	require.NoError(t, err)
	return v
}

func violations(t *testing.T, err error) []string {
	t.Helper()
	var verr *Error
	require.True(t, errors.As(err, &verr), "expected *Error, got %v", err)
	return verr.Violations
}

func TestSignup(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()

	require.NoError(t, v.Signup(ctx, domain.SignupRequest{
		Username: "ana", Name: "Ana", Email: "ana@example.com", Password: "secret",
	}))

	err := v.Signup(ctx, domain.SignupRequest{Username: "  ", Email: "nope"})
	assert.ElementsMatch(t, []string{
		"Email address is not valid",
		"Name is required",
		"Password is required",
		"Username is required",
	}, violations(t, err))
}

func TestLoginRequiresBothFields(t *testing.T) {
	v := newValidator(t)
	err := v.Login(context.Background(), domain.LoginRequest{Email: "ana@example.com"})
	assert.Equal(t, []string{"Password is required"}, violations(t, err))
}

func TestCampaign(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	require.NoError(t, v.Campaign(ctx, domain.Campaign{Name: "Launch", Status: "Active", Budget: 10000, StartDate: &start, EndDate: &end}))
	require.NoError(t, v.Campaign(ctx, domain.Campaign{Name: "Launch", Status: "Draft"}))

	err := v.Campaign(ctx, domain.Campaign{Name: "Launch", Status: "Active", Budget: -1, StartDate: &end, EndDate: &start})
	assert.ElementsMatch(t, []string{
		"Budget must not be negative",
		"End date must not be before start date",
	}, violations(t, err))
}

func TestProfileAndBrand(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()

	err := v.Profile(ctx, domain.ProfileUpdate{Name: "Ana"})
	assert.ElementsMatch(t, []string{"Email is required", "Username is required"}, violations(t, err))

	err = v.Brand(ctx, domain.Brand{BrandName: "Acme"})
	assert.ElementsMatch(t, []string{"Product description is required", "Target audience is required"}, violations(t, err))
}

func TestProfilePicture(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()

	require.NoError(t, v.ProfilePicture(ctx, "image/webp", 1024))
	require.NoError(t, v.ProfilePicture(ctx, "image/png", MaxPictureBytes))

	err := v.ProfilePicture(ctx, "application/pdf", MaxPictureBytes+1)
	assert.ElementsMatch(t, []string{
		"Image size must be less than 5MB",
		"Please upload a valid image (JPEG, PNG, GIF, or WebP)",
	}, violations(t, err))
}

func TestUnknownKind(t *testing.T) {
	v := newValidator(t)
	err := v.Check(context.Background(), Kind("payment"), nil)
	require.Error(t, err)
	var verr *Error
	assert.False(t, errors.As(err, &verr))
}
