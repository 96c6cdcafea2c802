package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livesession/internal/logging"
	"livesession/pkg/types"
)

const (
	publishQueueSize = 256
	publishTimeout   = 2 * time.Second
)

// envelope tags events with the publishing instance so it can skip its own
type envelope struct {
	Origin string             `json:"origin"`
	Event  types.SessionEvent `json:"event"`
}

// RedisPublisher mirrors session events onto a Redis channel.
// ARCHITECTURAL DISCOVERY: Publish only enqueues; a single goroutine talks to
// Redis so a slow broker can never stall a store mutation.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	origin  string
	queue   chan types.SessionEvent
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRedisPublisher connects to Redis and starts the publish loop
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	p := &RedisPublisher{
		client:  client,
		channel: cfg.channel(),
		origin:  uuid.New().String(),
		queue:   make(chan types.SessionEvent, publishQueueSize),
		logger:  logging.Component("pubsub"),
	}
	p.wg.Add(1)
	go p.loop()
	return p, nil
}

// Origin identifies this instance on the channel
func (p *RedisPublisher) Origin() string { return p.origin }

// Client returns the underlying Redis client
func (p *RedisPublisher) Client() *redis.Client { return p.client }

// Publish implements interfaces.Notifier
func (p *RedisPublisher) Publish(event types.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	select {
	case p.queue <- event:
	default:
		p.logger.Warn().Str("event", event.Type).Msg("redis publish queue full, dropping event")
	}
}

func (p *RedisPublisher) loop() {
	defer p.wg.Done()

	for event := range p.queue {
		data, err := encodeEnvelope(p.origin, event)
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to encode event")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = p.client.Publish(ctx, p.channel, data).Err()
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to publish event to redis")
		}
	}
}

// HealthCheck pings Redis
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close drains the queue and closes the client
func (p *RedisPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.client.Close()
}

// Subscribe delivers events published by other instances to handler until
// ctx is cancelled. Events carrying this publisher's origin are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(types.SessionEvent)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
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
				event, remote, err := decodeEnvelope(p.origin, []byte(msg.Payload))
				if err != nil {
					p.logger.Debug().Err(err).Msg("skipping malformed event")
					continue
				}
				if remote {
					handler(event)
				}
			}
		}
	}()
	return nil
}

func encodeEnvelope(origin string, event types.SessionEvent) ([]byte, error) {
	data, err := json.Marshal(envelope{Origin: origin, Event: event})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// decodeEnvelope reports remote=false for events this origin published
func decodeEnvelope(origin string, data []byte) (types.SessionEvent, bool, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return types.SessionEvent{}, false, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return env.Event, env.Origin != origin, nil
}
