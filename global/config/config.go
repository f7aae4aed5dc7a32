package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"FProject/data/database/mgo/mongoutil"
	"FProject/logger"
	mgoSrv "FProject/service/mgo"
	storage "FProject/service/storage"
	redis "FProject/service/storage/redis"
	ids "FProject/tools/ids"
)

var Global = AppConfig{
	NodeId: "notify_gw_01",
	Port:   8080,

	RedisAddr: "127.0.0.1:6379",
	RedisDB:   0,

	MongoUri:      "mongodb://localhost:27017",
	MongoDatabase: "fitmarket",

	NatsServers: []string{"nats://127.0.0.1:4222"},

	KafkaBrokers: []string{"127.0.0.1:9092"},
	EnableKafka:  false,

	JwtSecret: "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",
	JwtTTL:    2 * time.Hour,

	SessionTTL: 2 * time.Minute,
	MaxPerUser: 5,
	PingEvery:  25 * time.Second,
}

// LoadEnv 环境变量覆盖缺省值
func LoadEnv() {
	if v := os.Getenv("NODE_ID"); v != "" {
		Global.NodeId = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			Global.Port = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		Global.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		Global.RedisPassword = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		Global.MongoUri = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		Global.MongoDatabase = v
	}
	if v := os.Getenv("MONGO_USER"); v != "" {
		Global.MongoUser = v
	}
	if v := os.Getenv("MONGO_PASSWORD"); v != "" {
		Global.MongoPassword = v
	}
	if v := os.Getenv("NATS_SERVERS"); v != "" {
		Global.NatsServers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		Global.KafkaBrokers = strings.Split(v, ",")
		Global.EnableKafka = true
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		Global.JwtSecret = v
	}
	if v := os.Getenv("MAX_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			Global.MaxPerUser = n
		}
	}
}

func ConfigAll() {
	LoadEnv()
	ConfigIds()
	ConfigRedis()
	ConfigPresence()
	ConfigMgo()
}

func ConfigIds() {
	logger.Infof("配置id生成")
	ids.SetNodeID(100)
}

func GetJwtSecret() []byte {
	return []byte(Global.JwtSecret)
}

func ConfigRedis() {
	cfg := redis.Config{
		Addr: Global.RedisAddr, Password: Global.RedisPassword, DB: Global.RedisDB,
	}
	if err := redis.InitRedis(cfg); err != nil {
		logger.Errorf("init redis %s err=%v", Global.RedisAddr, err)
	}
}

func ConfigPresence() {
	_, err := storage.InitManager(storage.PresenceConfig{
		NodeID: Global.NodeId,
		TTL:    Global.SessionTTL,
	})
	if err != nil {
		logger.Errorf("init presence manager err=%v", err)
	}
}

func ConfigMgo() {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := &mongoutil.Config{
			Uri:         Global.MongoUri,
			Database:    Global.MongoDatabase,
			Username:    Global.MongoUser,
			Password:    Global.MongoPassword,
			MaxPoolSize: 20,
			MaxRetry:    3, // StartAsync 里还有指数退避
		}

		mgoSrv.StartAsync(ctx, cfg)
		if err := mgoSrv.WaitReady(ctx, mgoSrv.Manager()); err != nil {
			return
		}
		<-ctx.Done()
	}()
}
