package usage

import (
	"context"
	"log"
	"strconv"

	"sparkchat/internal/redis"
)

// premiumChannel carries user ids whose premium status was just activated
// or renewed, so every instance can drop its stale snapshot.
const premiumChannel = "billing:premium"

// PublishPremiumActivation announces a premium activation to all instances.
func PublishPremiumActivation(ctx context.Context, cache *redis.Client, userID int64) error {
	if cache == nil {
		return nil
	}
	return cache.Publish(ctx, premiumChannel, strconv.FormatInt(userID, 10))
}

// StartPremiumListener subscribes to premium activations and invalidates
// the local snapshot for each announced user. Runs until ctx is canceled.
func StartPremiumListener(ctx context.Context, cache *redis.Client) error {
	if cache == nil {
		return nil
	}
	sub, err := cache.Subscribe(ctx, premiumChannel)
	if err != nil {
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					log.Printf("premium listener: bad payload %q", msg.Payload)
					continue
				}
				if err := cache.Del(ctx, snapshotKey(userID)); err != nil {
					log.Printf("premium listener: invalidate user %d: %v", userID, err)
				}
			}
		}
	}()
	return nil
}
