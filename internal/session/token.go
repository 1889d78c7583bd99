package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// ErrNoToken is returned when a callback URL carries no token.
var ErrNoToken = errors.New("callback has no token")

// Query parameters the backend appends to the OAuth redirect.
var callbackParams = []string{"token", "userId", "userEmail", "userName", "profilePicture"}

// UserIDFromToken reads the user id claim from a JWT without verifying it. The
// client cannot verify the signature; the backend does that on every call.
func UserIDFromToken(token string) string {
	if strings.Count(token, ".") != 2 {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range []string{"id", "_id", "userId", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// FromCallbackURL extracts the session the backend handed over in a redirect
// URL, and returns the URL with the credential parameters stripped.
func FromCallbackURL(raw string) (*domain.Session, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	token := q.Get("token")
	if token == "" {
		return nil, raw, ErrNoToken
	}
	return sessionFromQuery(q), stripParams(u, q), nil
}

// FromQuery builds a session from already-parsed callback parameters.
func FromQuery(q url.Values) (*domain.Session, error) {
	if q.Get("token") == "" {
		return nil, ErrNoToken
	}
	return sessionFromQuery(q), nil
}

func sessionFromQuery(q url.Values) *domain.Session {
	sess := &domain.Session{Token: q.Get("token")}
	userID := q.Get("userId")
	if userID == "" {
		userID = UserIDFromToken(sess.Token)
	}
	if userID != "" {
		sess.User = &domain.User{
			ID:             userID,
			Email:          q.Get("userEmail"),
			Name:           q.Get("userName"),
			ProfilePicture: q.Get("profilePicture"),
		}
	}
	return sess
}

func stripParams(u *url.URL, q url.Values) string {
	for _, p := range callbackParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
