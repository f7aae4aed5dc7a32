package main

import (
	"context"
	"fmt"
	"os"
	"time"

	config "FProject/global/config"
	"FProject/logger"
	mid "FProject/middleware"
	midsec "FProject/middleware/security"
	notifyapi "FProject/module/notify/api"
	notifystore "FProject/module/notify/store"
	kafka "FProject/service/kafka"
	mgoSrv "FProject/service/mgo"
	natsx "FProject/service/natsx"
	notifysrv "FProject/service/notify"
	wsh "FProject/service/notify/handlers"
	storage "FProject/service/storage"
	security "FProject/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1) 基础设施：ids / redis / presence / mongo
	config.ConfigAll()

	// mongo 就绪前 store 起不来
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := mgoSrv.WaitReady(ctx, mgoSrv.Manager())
		cancel()
		if err != nil {
			logger.Errorf("mongo not ready: %v", err)
			os.Exit(1)
		}
	}

	store := notifystore.NewStore()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Warnf("ensure notification indexes: %v", err)
		}
		cancel()
	}

	presence := storage.GetManager()

	// 2) 可选 Kafka 全量流
	var fh notifysrv.Firehose
	if config.Global.EnableKafka {
		if err := kafka.InitKafkaClient(config.Global.KafkaBrokers); err != nil {
			logger.Errorf("init kafka client: %v", err)
		} else if err := kafka.InitSyncProducerFromClient(); err != nil {
			logger.Errorf("init kafka producer: %v", err)
		} else {
			fh = kafka.NewNotifyFirehose("")
		}
	}

	// 3) 分发器 / 已读同步器 / 网关
	notifier := notifysrv.NewNotifier(store, presence, fh)
	readState := notifysrv.NewReadState(store, presence)

	jwtOpts := security.DefaultOptions(config.GetJwtSecret())
	jwtOpts.TTL = config.Global.JwtTTL

	srv := notifysrv.NewServer(notifysrv.ServerConf{
		NodeID:    config.Global.NodeId,
		Jwt:       jwtOpts,
		PingEvery: config.Global.PingEvery,
		Manager: notifysrv.ManagerConf{
			SessionTTL:  config.Global.SessionTTL,
			MaxPerUser:  config.Global.MaxPerUser,
			EvictOldest: true,
		},
	}, notifier, readState, presence)

	srv.Disp().Register(wsh.NewJoinHandler())
	srv.Disp().Register(wsh.NewMarkReadHandler())
	srv.Disp().Register(wsh.NewTypingHandler())
	srv.Disp().Register(wsh.NewPingHandler())

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 4) 跨进程投递面
	fanout := notifysrv.NewFanout(srv.ConnMgr(), 4, 1024)
	fanout.Start(rootCtx)

	// 5) NATS 注入入口（幂等中间件兜住 broker 重投）
	natsx.UseGlobalMiddlewares(natsx.NatsxIdemMiddleware(natsx.NewMemIdem(10*time.Minute), 10*time.Minute))
	if err := notifysrv.RegisterDispatchIngress(notifier); err != nil {
		logger.Errorf("register dispatch ingress: %v", err)
	}
	if err := natsx.StartNats(natsx.NatsxConfig{
		Servers: config.Global.NatsServers,
		Name:    config.Global.NodeId,
	}); err != nil {
		// 没有 NATS 也能跑：HTTP 注入面还在
		logger.Warnf("start nats: %v", err)
	}

	// 6) HTTP + WebSocket
	r := gin.New()
	mid.Manager().Add(gin.Recovery())
	r.Use(mid.Manager().Use())

	api := notifyapi.NewNotifyAPI(store, notifier)
	authOpts := midsec.DefaultOptions(jwtOpts)

	r.GET("/ws", srv.HandleWS)
	r.GET("/health", api.Health)
	mid.POST(r, "/api/notify/dispatch", api.Dispatch, mid.RouteOpt{IsAuth: true, Auth: authOpts})
	mid.GET(r, "/api/notify/list", api.List, mid.RouteOpt{IsAuth: true, Auth: authOpts})
	mid.GET(r, "/api/notify/unread", api.Unread, mid.RouteOpt{IsAuth: true, Auth: authOpts})

	addr := fmt.Sprintf(":%d", config.Global.Port)
	logger.Infof("[HTTP] Listening on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("HTTP server failed: %v", err)
		os.Exit(1)
	}
}
