package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// ProfilePictureField is the multipart field the backend reads the upload from.
const ProfilePictureField = "profile_picture"

// Me returns the profile of the signed-in user.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{op: "get current user", method: http.MethodGet, path: "/users/me", authed: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser returns a user by id.
func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{op: "get user", method: http.MethodGet, path: "/users/" + escape(userID), authed: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser patches the user's profile and returns the stored copy.
func (c *Client) UpdateUser(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{op: "update profile", method: http.MethodPatch, path: "/users/" + escape(userID), body: update, authed: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UploadProfilePicture replaces the user's picture. contentType must be the
// image MIME type; the backend rejects anything else.
func (c *Client) UploadProfilePicture(ctx context.Context, userID, filename, contentType string, data io.Reader) (*domain.User, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ProfilePictureField, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("upload profile picture: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return nil, fmt.Errorf("upload profile picture: failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload profile picture: %w", err)
	}

	var user domain.User
	err = c.do(ctx, request{
		op:          "upload profile picture",
		method:      http.MethodPost,
		path:        "/users/" + escape(userID) + "/profile-picture",
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
		authed:      true,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteProfilePicture removes the user's picture.
func (c *Client) DeleteProfilePicture(ctx context.Context, userID string) error {
	return c.do(ctx, request{
		op:     "delete profile picture",
		method: http.MethodDelete,
		path:   "/users/" + escape(userID) + "/profile-picture",
		authed: true,
	}, nil)
}
