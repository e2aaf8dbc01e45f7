package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mizroch-Management/ocma-sub004/internal/ai"
	"github.com/Mizroch-Management/ocma-sub004/internal/config"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/db"
	"github.com/Mizroch-Management/ocma-sub004/internal/executor"
	"github.com/Mizroch-Management/ocma-sub004/internal/httpapi"
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

	// the at-time trigger is an optimization over the sweep; a missing
	// broker degrades to sweep-only, it does not stop the API
	var registrar job.TriggerRegistrar
	trig, err := trigger.New(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("[server] rabbit unavailable, relying on sweep only: %v", err)
	} else {
		registrar = trig
		defer trig.Close()
	}

	locks := newLocker(cfg)

	svc := job.NewService(jobRepo, registrar, reg.Platforms())

	exec := executor.New(executor.Deps{
		Jobs:           jobRepo,
		Credentials:    credStore,
		Refresher:      refresher,
		Publishers:     reg,
		Generator:      ai.NewRemoteGenerator(cfg.AIBaseURL, cfg.AIAPIKey),
		Locks:          locks,
		Trigger:        registrar,
		SweepBatchSize: cfg.SweepBatchSize,
	})

	r := httpapi.NewRouter(cfg, svc, exec, credStore)

	log.Printf("[server] listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
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
		log.Printf("[server] redis unavailable, using in-process refresh locks: %v", err)
		return credential.NewMutexLocker()
	}
	return credential.NewRedisLocker(rdb)
}
