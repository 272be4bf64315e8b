package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// AgentSessionKey holds the JSON document of one agent session.
func AgentSessionKey(appName, userID, sessionID string) string {
	return fmt.Sprintf("agent:session:%s:%s:%s", appName, userID, sessionID)
}

// RegistryKey is the hash mapping user id to active session id.
func RegistryKey(appName string) string {
	return fmt.Sprintf("registry:%s", appName)
}

// WebhookEventKey marks a delivered webhook event id.
func WebhookEventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

// UserRateLimitKey is the sliding-window set for one LINE user.
func UserRateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:user:%s", userID)
}
