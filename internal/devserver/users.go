package devserver

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arunshreyas/Marketa/internal/domain"
)

const maxPictureBytes = 5 << 20

var pictureExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Me handles GET /users/me.
func (s *Server) Me(c echo.Context) error {
	user, ok := s.state.user(currentUserID(c))
	if !ok {
		return jsonError(c, http.StatusNotFound, "User not found")
	}
	return c.JSON(http.StatusOK, user)
}

// GetUser handles GET /users/:id. Only the signed-in user is visible.
func (s *Server) GetUser(c echo.Context) error {
	if c.Param("id") != currentUserID(c) {
		return jsonError(c, http.StatusNotFound, "User not found")
	}
	return s.Me(c)
}

// UpdateUser handles PATCH /users/:id.
func (s *Server) UpdateUser(c echo.Context) error {
	id := c.Param("id")
	if id != currentUserID(c) {
		return jsonError(c, http.StatusNotFound, "User not found")
	}
	var req domain.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" {
		return jsonError(c, http.StatusBadRequest, "Name, username, and email are required")
	}
	user, err := s.state.updateUser(id, func(rec *userRecord) error {
		rec.user.Name = req.Name
		rec.user.Username = req.Username
		rec.user.Email = req.Email
		if req.BusinessProfile != nil {
			bp := *req.BusinessProfile
			rec.user.BusinessProfile = &bp
		}
		return nil
	})
	if errors.Is(err, errConflict) {
		return jsonError(c, http.StatusBadRequest, "Email already in use")
	}
	if err != nil {
		return ownershipError(c, err, "User")
	}
	return c.JSON(http.StatusOK, user)
}

// UploadProfilePicture handles POST /users/:id/profile-picture.
func (s *Server) UploadProfilePicture(c echo.Context) error {
	id := c.Param("id")
	if id != currentUserID(c) {
		return jsonError(c, http.StatusNotFound, "User not found")
	}
	file, err := c.FormFile("profile_picture")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "profile_picture file is required")
	}
	ext, ok := pictureExtensions[file.Header.Get(echo.HeaderContentType)]
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Please upload a valid image (JPEG, PNG, GIF, or WebP)")
	}
	if file.Size > maxPictureBytes {
		return jsonError(c, http.StatusBadRequest, "Image size must be less than 5MB")
	}

	user, err := s.state.updateUser(id, func(rec *userRecord) error {
		rec.user.ProfilePicture = path.Join("/uploads", id, newObjectID()+ext)
		return nil
	})
	if err != nil {
		return ownershipError(c, err, "User")
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteProfilePicture handles DELETE /users/:id/profile-picture.
func (s *Server) DeleteProfilePicture(c echo.Context) error {
	id := c.Param("id")
	if id != currentUserID(c) {
		return jsonError(c, http.StatusNotFound, "User not found")
	}
	user, err := s.state.updateUser(id, func(rec *userRecord) error {
		rec.user.ProfilePicture = ""
		return nil
	})
	if err != nil {
		return ownershipError(c, err, "User")
	}
	return c.JSON(http.StatusOK, user)
}

// GetBrand handles GET /api/brand.
func (s *Server) GetBrand(c echo.Context) error {
	brand, ok := s.state.brand(currentUserID(c))
	if !ok {
		return jsonError(c, http.StatusNotFound, "Brand not found")
	}
	return c.JSON(http.StatusOK, brand)
}

// SaveBrand handles POST /api/brand.
func (s *Server) SaveBrand(c echo.Context) error {
	var req domain.Brand
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.BrandName) == "" || strings.TrimSpace(req.ProductDescription) == "" || strings.TrimSpace(req.TargetAudience) == "" {
		return jsonError(c, http.StatusBadRequest, "Brand name, product description, and target audience are required")
	}
	userID := currentUserID(c)
	req.UserID = userID
	_, err := s.state.updateUser(userID, func(rec *userRecord) error {
		b := req
		rec.brand = &b
		rec.user.HasBrand = true
		return nil
	})
	if err != nil {
		return ownershipError(c, err, "User")
	}
	return c.JSON(http.StatusCreated, req)
}
