package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only if it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ChatLocker is a per-chat try-lock shared by every server instance.
// The ttl bounds how long a crashed holder can block a chat.
type ChatLocker struct {
	client *Client
	ttl    time.Duration
	prefix string
}

// NewChatLocker creates a locker with keys under "chatlock:"
func NewChatLocker(client *Client, ttl time.Duration) *ChatLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ChatLocker{client: client, ttl: ttl, prefix: "chatlock:"}
}

// TryLock takes the chat's lock if it is free. ok is false when another
// holder already has it.
func (l *ChatLocker) TryLock(ctx context.Context, chatID string) (func(), bool, error) {
	key := l.prefix + chatID
	token := uuid.NewString()

	acquired, err := l.client.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire chat lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func() {
		// the request context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, l.client.client, []string{key}, token).Err()
	}
	return unlock, true, nil
}
