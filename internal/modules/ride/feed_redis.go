// README: Change feed over Redis pub/sub for multi-node deployments.
package ride

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quickauto/internal/logging"
	"quickauto/internal/types"
)

const (
	feedChannelAll    = "quickauto:rides"
	feedChannelPrefix = "quickauto:rides:"
)

type RedisFeed struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisFeed(rdb *redis.Client, log *logrus.Logger) *RedisFeed {
	if log == nil {
		log = logging.Discard()
	}
	return &RedisFeed{rdb: rdb, log: log}
}

func feedChannel(id types.ID) string {
	if id == "" {
		return feedChannelAll
	}
	return feedChannelPrefix + string(id)
}

func (f *RedisFeed) Publish(ctx context.Context, s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := f.rdb.Pipeline()
	pipe.Publish(ctx, feedChannel(s.Ride.ID), payload)
	pipe.Publish(ctx, feedChannelAll, payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (f *RedisFeed) Subscribe(ctx context.Context, id types.ID) (<-chan Snapshot, error) {
	sub := f.rdb.Subscribe(ctx, feedChannel(id))
	// Wait for the subscription to be confirmed so no publish after return is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Snapshot, 1)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					f.log.WithFields(logrus.Fields{"channel": msg.Channel, "error": err}).Warn("drop malformed ride snapshot")
					continue
				}
				offer(out, snap)
			}
		}
	}()
	return out, nil
}
