package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

func (c *Client) SendMessage(ctx context.Context, req models.MessageRequest) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, request{method: http.MethodPost, path: "/chat/send", auth: true, body: req, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversation returns the thread with userID, oldest first.
func (c *Client) Conversation(ctx context.Context, userID string) ([]models.Message, error) {
	var out []models.Message
	err := c.do(ctx, request{method: http.MethodGet, path: "/chat/conversation/" + url.PathEscape(userID), auth: true, out: &out})
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, request{method: http.MethodPost, path: "/chat/mark-read/" + url.PathEscape(messageID), auth: true, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unread returns every unread message addressed to the caller.
func (c *Client) Unread(ctx context.Context) ([]models.Message, error) {
	var out []models.Message
	err := c.do(ctx, request{method: http.MethodGet, path: "/chat/unread", auth: true, out: &out})
	return out, err
}

// ChatUsers returns the users the caller has a conversation with.
func (c *Client) ChatUsers(ctx context.Context) ([]models.ChatUser, error) {
	var out []models.ChatUser
	err := c.do(ctx, request{method: http.MethodGet, path: "/chat/users", auth: true, out: &out})
	return out, err
}

// Poll returns messages sent or received by the caller that are strictly
// newer than since.
func (c *Client) Poll(ctx context.Context, since time.Time) ([]models.Message, error) {
	q := url.Values{"timestamp": {models.FormatTimestamp(since)}}
	var out []models.Message
	err := c.do(ctx, request{method: http.MethodGet, path: "/chat/poll?" + q.Encode(), auth: true, out: &out})
	return out, err
}
