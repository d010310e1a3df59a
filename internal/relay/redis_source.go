package relay

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
)

// RedisSource implements EventSource over Redis Pub/Sub. The CRUD backend
// publishes row-level changes to orgchanges:<orgID>; each subscriber gets an
// independent feed.
type RedisSource struct {
	rdb *redis.Client
}

func NewRedisSource(url string) (*RedisSource, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisSource{rdb: redis.NewClient(opt)}, nil
}

func (s *RedisSource) Subscribe(ctx context.Context, orgID string) (<-chan ChangeEvent, error) {
	ps := s.rdb.Subscribe(ctx, s.chanName(orgID))
	// initial receive confirms the subscription is live
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				// no backpressure to the publisher; drop when the relay lags
				select {
				case out <- evt:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Publish pushes a change event onto an organization's feed. Used by tooling
// and tests; the production publisher lives in the CRUD backend.
func (s *RedisSource) Publish(ctx context.Context, orgID string, evt ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.chanName(orgID), data).Err()
}

func (s *RedisSource) chanName(orgID string) string { return "orgchanges:" + orgID }
