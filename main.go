package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ChatRelay/global/config"
	"ChatRelay/logger"
	"ChatRelay/service/bus"
	"ChatRelay/service/chat"
	"ChatRelay/service/natsbus"
	"ChatRelay/service/storage"
	"ChatRelay/tools/ids"
	"ChatRelay/tools/safe"

	"github.com/redis/go-redis/v9"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		logger.Errorf("[main] load config: %v", err)
		return
	}
	if conf.GatewayID == "" {
		conf.GatewayID = "gw-" + ids.GenerateString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := buildBus(conf)
	defer func() { _ = conn.Close() }()

	store, err := storage.NewMongoStore(ctx, storage.MongoConf{
		URI:      conf.Mongo.URI,
		Database: conf.Mongo.Database,
		Timeout:  conf.Mongo.Timeout,
	})
	if err != nil {
		logger.Errorf("[main] mongo init: %v", err)
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
		PoolSize: conf.Redis.PoolSize,
	})
	presence := storage.NewRedisPresence(rdb, conf.PresenceTTL)

	reg := chat.NewRegistryWithConf(chat.RegistryConf{TypingTTL: conf.TypingTTL})
	defer reg.Close()

	fanout := chat.NewFanout(conf.FanoutWorkers, conf.FanoutQueueLen)
	pub := bus.NewPublisher(conn, conf.PublishAttempts, conf.PublishBackoff)
	gw := chat.NewGateway(conf.GatewayID, reg, store, presence, pub)

	srv := chat.NewServer(chat.ServerConf{
		GatewayID:     conf.GatewayID,
		SendQueueSize: conf.SendQueueSize,
		RetryDelay:    conf.SubscribeRetryDelay,
	}, conn, reg, fanout, gw)

	// 订阅循环必须先于对外流量挂好：保证每个可发布频道都有活跃监听
	srv.StartLoops(ctx)

	httpSrv := &http.Server{Addr: conf.ListenAddr, Handler: srv.Router()}
	safe.Go("http-server", func() {
		logger.Infof("[main] gateway=%s listening on %s (bus=%s)", conf.GatewayID, conf.ListenAddr, conf.BusBackend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] http server: %v", err)
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("[main] shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(sctx)
	logger.Sync()
}

func buildBus(conf *config.AppConfig) bus.Conn {
	switch conf.BusBackend {
	case "nats":
		return natsbus.New(natsbus.Conf{
			Servers: conf.Nats.Servers,
			Name:    conf.Nats.Name,
		})
	case "memory":
		// 单进程部署：不需要外部后端
		return bus.NewMemoryBus()
	default:
		return bus.NewRedisBus(bus.RedisConf{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
			PoolSize: conf.Redis.PoolSize,
		})
	}
}
