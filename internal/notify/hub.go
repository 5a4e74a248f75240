// Package notify 持久化站内通知，并通过 Redis Pub/Sub（或进程内广播）推送给 WebSocket 连接。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Channel 返回用户的推送频道名。
func Channel(userID string) string {
	return "user_notify:" + userID
}

// Hub 负责按用户发布与订阅消息。
type Hub interface {
	Publish(ctx context.Context, userID string, payload []byte) error
	// Subscribe 返回消息通道与取消订阅函数。
	Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error)
}

// RedisHub 基于 Redis Pub/Sub，worker 与 api 进程之间共享。
type RedisHub struct {
	client redis.UniversalClient
}

func NewRedisHub(client redis.UniversalClient) *RedisHub {
	return &RedisHub{client: client}
}

func (h *RedisHub) Publish(ctx context.Context, userID string, payload []byte) error {
	if err := h.client.Publish(ctx, Channel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(userID), err)
	}
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	pubsub := h.client.Subscribe(ctx, Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", Channel(userID), err)
	}

	out := make(chan []byte, 16)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, func() {
		cancel()
		_ = pubsub.Close()
	}, nil
}

// MemoryHub 进程内广播，仅适用于单进程（inline worker）部署。
type MemoryHub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: map[string]map[chan []byte]struct{}{}}
}

func (h *MemoryHub) Publish(_ context.Context, userID string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- payload:
		default:
			// 慢消费者丢弃
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(_ context.Context, userID string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[chan []byte]struct{}{}
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}, nil
}

// encode 将消息编码为 WebSocket 负载。
func encode(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode notify message: %w", err)
	}
	return b, nil
}
