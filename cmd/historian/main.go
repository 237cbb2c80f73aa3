// cmd/historian/main.go is an asynchronous sidecar that pops finished-match
// records from the Redis queue and persists them to PostgreSQL. The battle
// server stays memory-only; this process is the only one that touches a
// database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/typebattle/typebattle/internal/room"
)

// HistorianService encapsulates the Redis + DB logic for capturing finished
// matches in batched transactions.
type HistorianService struct {
	redisClient *redis.Client
	db          *pgxpool.Pool
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []room.MatchRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		queueName:   getEnv("MATCH_QUEUE_NAME", "typebattle_matches"),
		batchSize:   getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		flushDelay:  time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		batch:       make([]room.MatchRecord, 0, 20),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and starts the queue-draining loop.
func (hs *HistorianService) Run() {
	hs.db = connectDB()

	go hs.readRedisLoop()

	log.Println("typebattle-historian service started.")
	<-hs.ctx.Done()
	log.Println("typebattle-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve match records from the
// Redis queue, accumulating a batch and flushing it on size or delay.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, hs.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec room.MatchRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				log.Printf("invalid match record: %v\n", err)
				continue
			}
			hs.appendToBatch(rec)
		}
	}
}

func (hs *HistorianService) appendToBatch(rec room.MatchRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, rec)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchLocked()
	}
}

func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchLocked()
}

// flushBatchLocked writes the current batch in a single transaction.
// Caller holds batchMu.
func (hs *HistorianService) flushBatchLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]room.MatchRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := beginTxFunc(ctx, hs.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertMatchTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertMatchTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d matches to DB.\n", len(batchCopy))
	}
}

// insertMatchTx inserts one finished match plus its per-player final stats.
func insertMatchTx(ctx context.Context, tx pgx.Tx, rec room.MatchRecord) error {
	matchInsertQ := `
		INSERT INTO matches (id, room_code, winner, forfeit, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := tx.Exec(ctx, matchInsertQ,
		rec.MatchID, rec.RoomCode, rec.Winner, rec.Forfeit, rec.CreatedAt, rec.EndedAt,
	)
	if err != nil {
		return err
	}

	playerInsertQ := `
		INSERT INTO match_players (
			match_id, slot_index, conn_id, health, wpm, accuracy, progress
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, p := range rec.Players {
		_, err = tx.Exec(ctx, playerInsertQ,
			rec.MatchID, i, p.ID, p.Health, p.WPM, p.Accuracy, p.Progress,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// beginTxFunc starts a transaction, calls f, and commits or rolls back.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

// connectDB builds the pgx pool from the POSTGRES_* environment variables.
func connectDB() *pgxpool.Pool {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	pgCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Fatalf("unable to parse pgx config: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
	if err != nil {
		log.Fatalf("unable to create pgx pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	return pool
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer from an environment variable or returns a default.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
