package api

import (
	"context"
	"net/http"

	"github.com/arunshreyas/Marketa/internal/domain"
)

// GetBrand returns the signed-in user's brand, or ErrNotFound before onboarding.
func (c *Client) GetBrand(ctx context.Context) (*domain.Brand, error) {
	var brand domain.Brand
	if err := c.do(ctx, request{op: "get brand", method: http.MethodGet, path: "/api/brand", authed: true}, &brand); err != nil {
		return nil, err
	}
	return &brand, nil
}

// SaveBrand creates or replaces the signed-in user's brand.
func (c *Client) SaveBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	var saved domain.Brand
	if err := c.do(ctx, request{op: "save brand", method: http.MethodPost, path: "/api/brand", body: brand, authed: true}, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}
