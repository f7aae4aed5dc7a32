package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

var (
	KafkaClient sarama.Client
	SyncProd    sarama.SyncProducer
)

// In-code 配置（不读 YAML）
type AppConfig struct {
	Brokers             []string
	Topic               string // 全量通知流 topic
	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
	KafkaVersion        sarama.KafkaVersion
}

// 默认配置（可直接改）
var Cfg = AppConfig{
	Brokers:             []string{"127.0.0.1:9092"},
	Topic:               "notification_created",
	ProducerRetries:     5,
	ProducerCompression: "snappy",
	KafkaVersion:        sarama.V2_1_0_0,
}

func BuildBaseConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = Cfg.KafkaVersion

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if Cfg.ProducerRetries <= 0 {
		Cfg.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = Cfg.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key=userID，同一用户保序
	switch strings.ToLower(Cfg.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func InitKafkaClient(brokers []string) error {
	if len(brokers) > 0 {
		Cfg.Brokers = brokers
	}
	cfg := BuildBaseConfig()
	c, err := sarama.NewClient(Cfg.Brokers, cfg)
	if err != nil {
		return err
	}
	KafkaClient = c
	return nil
}

func InitSyncProducerFromClient() error {
	p, err := sarama.NewSyncProducerFromClient(KafkaClient)
	if err != nil {
		return err
	}
	SyncProd = p
	return nil
}

// SendSync Key 控制分区；key 可为空
func SendSync(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	_, _, err := SyncProd.SendMessage(msg)
	return err
}
