package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentlink/internal/domain"

	"github.com/go-redis/redis/v8"
)

const onlineAgentsKey = "agents:online"

func pendingChatKey(userID string) string {
	return fmt.Sprintf("pending_chat:%s", userID)
}

func (r *RedisClient) AddOnlineAgent(ctx context.Context, agent domain.OnlineAgent) error {
	agentJSON, err := json.Marshal(agent)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, onlineAgentsKey, agent.UserID, agentJSON).Err()
}

func (r *RedisClient) RemoveOnlineAgent(ctx context.Context, userID string) error {
	return r.client.HDel(ctx, onlineAgentsKey, userID).Err()
}

func (r *RedisClient) GetOnlineAgents(ctx context.Context) ([]domain.OnlineAgent, error) {
	entries, err := r.client.HGetAll(ctx, onlineAgentsKey).Result()
	if err != nil {
		return nil, err
	}

	agents := make([]domain.OnlineAgent, 0, len(entries))
	for _, agentJSON := range entries {
		var agent domain.OnlineAgent
		if err := json.Unmarshal([]byte(agentJSON), &agent); err != nil {
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// SetPendingChat records the chat a customer currently has open so a repeat
// request resumes it instead of assigning a second agent.
func (r *RedisClient) SetPendingChat(ctx context.Context, userID, chatID string, ttl time.Duration) error {
	return r.client.Set(ctx, pendingChatKey(userID), chatID, ttl).Err()
}

// GetPendingChat returns the customer's open chat ID, or "" if there is none.
func (r *RedisClient) GetPendingChat(ctx context.Context, userID string) (string, error) {
	chatID, err := r.client.Get(ctx, pendingChatKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return chatID, nil
}

func (r *RedisClient) ClearPendingChat(ctx context.Context, userID string) error {
	return r.client.Del(ctx, pendingChatKey(userID)).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
