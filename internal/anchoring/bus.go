package anchoring

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agrobridge/backend/internal/pkg/logger"
)

// Confirmation is the message the ledger side publishes once a submission
// settles.
type Confirmation struct {
	SubmissionID string `json:"submission_id"`
	AnchorRef    string `json:"anchor_ref"`
}

// Bus carries confirmations between the ledger gateway and this process.
type Bus interface {
	Publish(ctx context.Context, conf Confirmation) error
	Subscribe(ctx context.Context, onConf func(Confirmation)) error
	Close() error
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to REDIS_ADDR and uses ANCHOR_CONFIRM_CHANNEL
// (default "anchor.confirmations").
func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("ANCHOR_CONFIRM_CHANNEL"))
	if ch == "" {
		ch = "anchor.confirmations"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "AnchorConfirmBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, conf Confirmation) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("confirmation bus not initialized")
	}
	raw, err := json.Marshal(conf)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, onConf func(Confirmation)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("confirmation bus not initialized")
	}
	if onConf == nil {
		return fmt.Errorf("onConf callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var conf Confirmation
				if err := json.Unmarshal([]byte(m.Payload), &conf); err != nil {
					b.log.Warn("bad confirmation payload", "error", err)
					continue
				}
				onConf(conf)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
