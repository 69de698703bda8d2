package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

func (c *Client) ListStudents(ctx context.Context) ([]models.Student, error) {
	var out []models.Student
	err := c.do(ctx, request{method: http.MethodGet, path: "/students", auth: true, out: &out})
	return out, err
}

func (c *Client) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var out models.Student
	if err := c.do(ctx, request{method: http.MethodGet, path: "/students/" + url.PathEscape(id), auth: true, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateStudent(ctx context.Context, req models.CreateStudentRequest) (*models.Student, error) {
	var out models.Student
	if err := c.do(ctx, request{method: http.MethodPost, path: "/students", auth: true, body: req, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStudent(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.Student, error) {
	var out models.Student
	if err := c.do(ctx, request{method: http.MethodPut, path: "/students/" + url.PathEscape(id), auth: true, body: req, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStudent(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/students/" + url.PathEscape(id), auth: true})
}
