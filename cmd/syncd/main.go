package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharmayash2805/Event-Attendance-System/internal/config"
	"github.com/sharmayash2805/Event-Attendance-System/internal/device"
	"github.com/sharmayash2805/Event-Attendance-System/internal/pending"
	"github.com/sharmayash2805/Event-Attendance-System/internal/queue"
	"github.com/sharmayash2805/Event-Attendance-System/internal/remote"
	"github.com/sharmayash2805/Event-Attendance-System/internal/roster"
	"github.com/sharmayash2805/Event-Attendance-System/internal/store"
	"github.com/sharmayash2805/Event-Attendance-System/internal/syncer"
)

// syncd consumes drain triggers, runs drain passes, and retries with
// exponential backoff while the server stays unreachable.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer db.Close()

	deviceID, err := device.GetOrCreate(ctx, db.Client)
	if err != nil {
		log.Fatalf("device id failed: %v", err)
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		q = queue.NewRedisQueue(redisClient.Client, "attendance:sync")
	} else {
		q = queue.NewInMemory(64)
	}

	rosterStore := roster.NewStore(db.Client)
	pendingQueue := pending.NewQueue(db.Client)
	client := remote.New(cfg.ServerURL, deviceID, cfg.ConnectTimeout, cfg.RequestTimeout)
	drainer := syncer.NewDrainer(rosterStore, pendingQueue, client)

	triggers, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	if client.Ping(ctx, 0) {
		log.Println("attendance server reachable")
	} else {
		log.Println("WARNING: attendance server not reachable, queued actions will wait")
	}

	ticker := time.NewTicker(cfg.DrainInterval)
	defer ticker.Stop()

	// Backoff timer, armed only after a pass that left work behind.
	backoff := cfg.DrainBackoff
	retry := time.NewTimer(time.Hour)
	if !retry.Stop() {
		<-retry.C
	}

	runPass := func() {
		report, err := drainer.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("drain pass failed: %v", err)
			return
		}
		log.Printf("drain pass: %d confirmed, %d waiting", report.Succeeded, report.Retried)
		if report.NeedsRetry() {
			retry.Reset(backoff)
			backoff *= 2
			if backoff > cfg.DrainMaxBackoff {
				backoff = cfg.DrainMaxBackoff
			}
		} else {
			backoff = cfg.DrainBackoff
		}
	}

	log.Println("syncd started, waiting for triggers...")
	for {
		select {
		case msg, ok := <-triggers:
			if !ok {
				log.Println("syncd stopped")
				return
			}
			if msg.Type != queue.TypeSync {
				continue
			}
			runPass()
		case <-ticker.C:
			runPass()
		case <-retry.C:
			runPass()
		case <-ctx.Done():
			log.Println("syncd stopped")
			return
		}
	}
}
