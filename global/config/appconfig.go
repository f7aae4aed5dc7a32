package config

import "time"

// AppConfig 进程级配置；缺省值面向本机联调，生产用环境变量覆盖
type AppConfig struct {
	NodeId string // 网关节点ID
	Port   int    // HTTP/WS 监听端口

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoUri      string
	MongoDatabase string
	MongoUser     string
	MongoPassword string

	NatsServers []string

	KafkaBrokers []string
	EnableKafka  bool // 全量通知流开关

	JwtSecret string
	JwtTTL    time.Duration

	SessionTTL time.Duration // 会话TTL（本地+共享索引共用）
	MaxPerUser int           // 每用户最大连接数
	PingEvery  time.Duration
}
