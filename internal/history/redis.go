// internal/history/redis.go
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/typebattle/typebattle/internal/room"
)

// Publisher pushes finished-match records onto a Redis queue for the
// historian sidecar to persist. The battle server itself never touches a
// database; when Redis is not configured the server simply runs without a
// sink.
type Publisher struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// NewPublisher connects the Redis client and verifies it with a ping.
func NewPublisher(addr string, db int, queue string, log *logrus.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Publisher{rdb: rdb, queue: queue, log: log}, nil
}

// Publish serializes the record and RPushes it onto the queue. Failures are
// logged, never propagated: match history is best-effort and must not affect
// the game-over path.
func (p *Publisher) Publish(rec room.MatchRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		p.log.Warnf("history: marshal match %s: %v", rec.MatchID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		p.log.Warnf("history: rpush match %s: %v", rec.MatchID, err)
		return
	}
	p.log.WithFields(logrus.Fields{
		"match": rec.MatchID,
		"room":  rec.RoomCode,
	}).Debug("match record queued")
}

// Close releases the Redis client.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
