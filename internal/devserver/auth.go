package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arunshreyas/Marketa/internal/domain"
)

const userIDKey = "user_id"

// ErrInvalidToken is returned for tokens the server did not issue or has
// expired.
var ErrInvalidToken = errors.New("invalid or expired token")

// CreateUser registers an account and returns its first token. It backs
// POST /signup and seeds accounts for tests.
func (s *Server) CreateUser(ctx context.Context, req domain.SignupRequest) (*domain.AuthResponse, error) {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Name) == "" ||
		strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, errors.New("all fields are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.state.addUser(domain.User{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
	}, hash)
	if err != nil {
		return nil, err
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID))
	return &domain.AuthResponse{Token: token, User: &user}, nil
}

// Signup handles POST /signup.
func (s *Server) Signup(c echo.Context) error {
	var req domain.SignupRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	resp, err := s.CreateUser(c.Request().Context(), req)
	if errors.Is(err, errConflict) {
		return jsonError(c, http.StatusBadRequest, "User already exists")
	}
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login handles POST /login.
func (s *Server) Login(c echo.Context) error {
	var req domain.LoginRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	rec, ok := s.state.userByEmail(req.Email)
	if !ok || rec.passwordHash == nil || bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(req.Password)) != nil {
		return jsonError(c, http.StatusUnauthorized, "Invalid credentials")
	}
	token, err := s.issueToken(rec.user)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}
	user := rec.user
	return c.JSON(http.StatusOK, domain.AuthResponse{Token: token, User: &user})
}

// OAuth handles GET /auth/:provider. There is no real provider: the account
// <provider>@oauth.local is signed in and the browser is sent to redirect_uri
// with the token in the query string, as the hosted backend does.
func (s *Server) OAuth(c echo.Context) error {
	provider := domain.OAuthProvider(c.Param("provider"))
	if !provider.Valid() {
		return jsonError(c, http.StatusNotFound, "unknown provider")
	}
	redirect := c.QueryParam("redirect_uri")
	if redirect == "" {
		redirect = "/"
	}
	target, err := url.Parse(redirect)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid redirect_uri")
	}

	email := string(provider) + "@oauth.local"
	rec, ok := s.state.userByEmail(email)
	var user domain.User
	if ok {
		user = rec.user
	} else {
		user, err = s.state.addUser(domain.User{
			Username: string(provider) + "-user",
			Name:     strings.ToUpper(string(provider[:1])) + string(provider[1:]) + " User",
			Email:    email,
		}, nil)
		if err != nil {
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}
	}
	token, err := s.issueToken(user)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	q := target.Query()
	q.Set("token", token)
	q.Set("userId", user.ID)
	q.Set("userEmail", user.Email)
	q.Set("userName", user.Name)
	if user.ProfilePicture != "" {
		q.Set("profilePicture", user.ProfilePicture)
	}
	target.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, target.String())
}

func (s *Server) issueToken(user domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":    user.ID,
		"email": user.Email,
		"gen":   s.generation.Load(),
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// verifyToken returns the user id a token was issued to.
func (s *Server) verifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	id, _ := claims["id"].(string)
	gen, _ := claims["gen"].(float64)
	if id == "" || int64(gen) != s.generation.Load() {
		return "", ErrInvalidToken
	}
	if _, ok := s.state.user(id); !ok {
		return "", ErrInvalidToken
	}
	return id, nil
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			return jsonError(c, http.StatusUnauthorized, "Authentication required")
		}
		userID, err := s.verifyToken(raw)
		if err != nil {
			return jsonError(c, http.StatusUnauthorized, "Invalid or expired token")
		}
		c.Set(userIDKey, userID)
		return next(c)
	}
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
