package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/api"
	"github.com/d60-Lab/community-core/internal/api/handler"
	"github.com/d60-Lab/community-core/internal/broker"
	"github.com/d60-Lab/community-core/internal/counter"
	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/idgen"
	"github.com/d60-Lab/community-core/internal/model"
	"github.com/d60-Lab/community-core/internal/outbox"
	"github.com/d60-Lab/community-core/internal/repository"
	"github.com/d60-Lab/community-core/internal/service"
	"github.com/d60-Lab/community-core/pkg/config"
	"github.com/d60-Lab/community-core/pkg/logger"
)

func main() {
	cfg := must(config.Load(os.Getenv("CONFIG_PATH")))
	mustDo(logger.Init(cfg.Server.LogLevel))
	defer logger.Sync()

	db := must(gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{}))
	mustDo(db.AutoMigrate(&model.Board{}, &model.BoardComment{}, &model.Outbox{}, &model.DeadLetter{}))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	gen := must(idgen.New(cfg.Server.NodeID))
	store := counter.NewStore(rdb)
	boardRepo := repository.NewBoardRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	boardService := service.NewBoardService(db, gen)
	counterService := service.NewCounterService(store, boardRepo, cfg.Reconcile.LikeSetTTL)

	// outbox relay：轮询外发盒投递到 broker
	pub := broker.NewStreamPublisher(rdb)
	relay := outbox.NewRelay(outboxRepo, pub,
		cfg.Outbox.PollInterval, cfg.Outbox.RelayDelay, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetry)
	stopRelay := relay.Start()

	// command 流消费者：热路径 view 指令与邮件通知
	cmdConsumer := broker.NewConsumer(rdb, event.TopicCommand, "community-command-worker", 3, 30*time.Second)
	mustDo(cmdConsumer.Register(event.TypeIncrementView,
		broker.WithIdempotency(rdb, 24*time.Hour, func(ctx context.Context, env event.Envelope) error {
			p := env.Payload.(event.IncrementViewPayload)
			_, err := store.IncrementView(ctx, p.BoardID)
			return err
		})))
	mustDo(cmdConsumer.Register(event.TypeEmailNotify, func(ctx context.Context, env event.Envelope) error {
		p := env.Payload.(event.EmailNotifyPayload)
		logger.Info("email notification dispatched",
			zap.Int64("event_id", env.EventID),
			zap.Int64("user_id", p.UserID),
			zap.String("subject", p.Subject))
		return nil
	}))
	stopConsumer := must(cmdConsumer.Start())

	// 对账：热路径增量定期折进持久化聚合
	reconciler := service.NewReconciler(db, store, gen, cfg.Reconcile.Interval)
	stopReconciler := reconciler.Start()

	// 榜单重算（集群互斥）
	ranking := service.NewRankingScheduler(db, boardRepo, gen, rdb,
		cfg.Ranking.Interval, cfg.Ranking.TopN, cfg.Ranking.MinHold, cfg.Ranking.MaxHold)
	stopRanking := ranking.Start()

	h := handler.New(boardService, counterService, repository.NewDeadLetterRepository(db))
	router := api.NewRouter(h)
	go func() {
		if err := router.Run(cfg.Server.Addr); err != nil {
			logger.Error("http server exited", zap.Error(err))
		}
	}()
	logger.Info("community-core started",
		zap.String("addr", cfg.Server.Addr),
		zap.Int64("node_id", cfg.Server.NodeID))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = stopRanking(ctx)
	_ = stopReconciler(ctx)
	_ = stopConsumer(ctx)
	_ = stopRelay(ctx)
	logger.Info("community-core stopped")
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
