package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// GatewayClient talks to the chat gateway sidecar over its REST API. The
// gateway owns the actual chat connection; this process only needs history
// pages, member roles, and the message stream the gateway pushes to
// Coordinator.HandleMessage.
type GatewayClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Connect builds a GatewayClient from TRANSPORT_BASE_URL and
// TRANSPORT_TOKEN. The same client serves as Source and RoleResolver.
func Connect(ctx context.Context) (Source, RoleResolver, error) {
	base := os.Getenv("TRANSPORT_BASE_URL")
	if base == "" {
		return nil, nil, fmt.Errorf("TRANSPORT_BASE_URL not set")
	}
	c := &GatewayClient{
		BaseURL:    base,
		Token:      os.Getenv("TRANSPORT_TOKEN"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	return c, c, nil
}

func (c *GatewayClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *GatewayClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type messageJSON struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	GuildID   int64     `json:"guild_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History fetches up to limit messages strictly older than beforeID, newest
// first. beforeID 0 starts from the newest message.
func (c *GatewayClient) History(ctx context.Context, channelID, beforeID int64, limit int) ([]Message, error) {
	query := map[string]string{"limit": fmt.Sprintf("%d", limit)}
	if beforeID != 0 {
		query["before"] = fmt.Sprintf("%d", beforeID)
	}
	var body struct {
		Messages []messageJSON `json:"messages"`
	}
	if err := c.get(ctx, fmt.Sprintf("/channels/%d/messages", channelID), query, &body); err != nil {
		return nil, fmt.Errorf("fetch history for channel %d: %w", channelID, err)
	}
	out := make([]Message, len(body.Messages))
	for i, m := range body.Messages {
		out[i] = Message{ID: m.ID, ChannelID: m.ChannelID, GuildID: m.GuildID, AuthorID: m.AuthorID, Content: m.Content, Timestamp: m.Timestamp}
	}
	return out, nil
}

// MemberRoles returns the member's role ids in the guild.
func (c *GatewayClient) MemberRoles(ctx context.Context, guildID, userID int64) ([]int64, error) {
	var body struct {
		Roles []int64 `json:"roles"`
	}
	if err := c.get(ctx, fmt.Sprintf("/guilds/%d/members/%d/roles", guildID, userID), nil, &body); err != nil {
		return nil, fmt.Errorf("fetch roles for member %d: %w", userID, err)
	}
	return body.Roles, nil
}
