package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/Mizroch-Management/ocma-sub004/internal/ai"
	"github.com/Mizroch-Management/ocma-sub004/internal/config"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/db"
	"github.com/Mizroch-Management/ocma-sub004/internal/executor"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
	"github.com/Mizroch-Management/ocma-sub004/internal/publisher"
	"github.com/Mizroch-Management/ocma-sub004/internal/trigger"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	jobRepo := job.NewRepo(gdb)
	credStore := credential.NewStore(gdb)
	refresher := credential.NewRefresher(cfg.Platforms)

	reg := publisher.NewRegistry()
	reg.Register(publisher.NewTwitterPublisher(cfg.Platforms["twitter"].APIBaseURL))
	reg.Register(publisher.NewLinkedInPublisher(cfg.Platforms["linkedin"].APIBaseURL))
	reg.Register(publisher.NewFacebookPublisher(cfg.Platforms["facebook"].APIBaseURL))
	reg.Register(publisher.NewInstagramPublisher(cfg.Platforms["instagram"].APIBaseURL))

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	topo := trigger.NewTopology(cfg.RabbitQueue)
	if err := topo.Declare(ch); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	trig, err := trigger.New(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("trigger: %v", err)
	}
	defer trig.Close()

	exec := executor.New(executor.Deps{
		Jobs:           jobRepo,
		Credentials:    credStore,
		Refresher:      refresher,
		Publishers:     reg,
		Generator:      ai.NewRemoteGenerator(cfg.AIBaseURL, cfg.AIAPIKey),
		Locks:          newLocker(cfg),
		Trigger:        trig,
		SweepBatchSize: cfg.SweepBatchSize,
	})

	// sweep safety net behind the delay-queue trigger
	sweeper, err := trigger.NewSweeper(exec, cfg.SweepInterval)
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(topo.Main, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d sweep=%s", topo.Main, concurrency, cfg.SweepInterval)

	// worker pool
	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				var m trigger.Message
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				out, err := exec.Execute(ctx, m.JobID)
				if err != nil {
					log.Printf("worker=%d job %s store error cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}
				if out.Error != "" {
					log.Printf("worker=%d job %s status=%s cost=%s err=%s", workerID, m.JobID, out.Status, time.Since(start), out.Error)
				}

				// job-level failures are recorded on the job row; the
				// delivery itself is done either way
				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			deliveries <- d
		}
	}
}

func newLocker(cfg config.Config) credential.Locker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[worker] redis unavailable, using in-process refresh locks: %v", err)
		return credential.NewMutexLocker()
	}
	return credential.NewRedisLocker(rdb)
}
