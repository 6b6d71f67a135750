package stores

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// DefaultInvalidationChannel is the pub/sub channel invalidation events travel
// on.
const DefaultInvalidationChannel = "permit:invalidate"

type invalidationEvent struct {
	Origin     string   `json:"origin"`
	UserID     string   `json:"user_id"`
	ProjectIDs []string `json:"project_ids,omitempty"`
}

// RedisInvalidator fans membership-change invalidations out to peer engine
// instances over Redis pub/sub. Each instance clears its own caches first and
// publishes; subscribers skip events they originated.
type RedisInvalidator struct {
	client   *redis.Client
	channel  string
	instance string
}

func NewRedisInvalidator(client *redis.Client, instanceID string) *RedisInvalidator {
	return &RedisInvalidator{client: client, channel: DefaultInvalidationChannel, instance: instanceID}
}

// WithChannel overrides the pub/sub channel name.
func (r *RedisInvalidator) WithChannel(channel string) *RedisInvalidator {
	r.channel = channel
	return r
}

func (r *RedisInvalidator) PublishInvalidation(ctx context.Context, userID string, projectIDs ...string) error {
	payload, err := json.Marshal(invalidationEvent{
		Origin:     r.instance,
		UserID:     userID,
		ProjectIDs: projectIDs,
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Subscribe blocks consuming invalidation events and applying them through the
// callback until the context is canceled. Malformed payloads and events this
// instance originated are dropped. Run it in its own goroutine.
func (r *RedisInvalidator) Subscribe(ctx context.Context, apply func(userID string, projectIDs ...string)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev invalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.UserID == "" || (r.instance != "" && ev.Origin == r.instance) {
				continue
			}
			apply(ev.UserID, ev.ProjectIDs...)
		}
	}
}
