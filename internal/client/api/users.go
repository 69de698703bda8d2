package api

import (
	"context"
	"net/http"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

// Users lists every account, the caller included.
func (c *Client) Users(ctx context.Context) ([]models.ChatUser, error) {
	var out []models.ChatUser
	err := c.do(ctx, request{method: http.MethodGet, path: "/users", auth: true, out: &out})
	return out, err
}
