package notify

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"estatecore/pkg/domain"
)

// DefaultStream is the Redis stream supplier notifications are appended to.
const DefaultStream = "estatecore:supplier-notifications"

// RedisStreamNotifier appends notifications to a Redis stream for worker
// processes (SMS, WhatsApp bridges) to consume.
type RedisStreamNotifier struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStreamNotifier publishes to stream, trimming it approximately to
// maxLen entries when maxLen > 0.
func NewRedisStreamNotifier(client redis.Cmdable, stream string, maxLen int64) *RedisStreamNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamNotifier{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStreamNotifier) Notify(ctx context.Context, partner domain.Partner, n domain.Notification) error {
	data, err := encode(partner, n)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"partner_id":      partner.ID,
			"notification_id": n.ID,
			"data":            string(data),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.stream, err)
	}
	return nil
}
