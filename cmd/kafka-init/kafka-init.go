package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeep/internal/obs"
	kafkax "github.com/NordCoder/Gatekeep/internal/repository/kafka"
)

// kafka-init creates the event topics before the services start.
func main() {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("kafka.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka.topics", []string{"user-events"})
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("kafka.rf", 1)
	v.SetDefault("kafka.wait", "30s")

	logger, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "kafka-init"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	brokers := v.GetStringSlice("kafka.brokers")
	for _, t := range v.GetStringSlice("kafka.topics") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		err := kafkax.EnsureTopic(ctx, brokers, kafkax.TopicSpec{
			Name:              t,
			NumPartitions:     v.GetInt("kafka.partitions"),
			ReplicationFactor: v.GetInt("kafka.rf"),
			MaxWait:           v.GetDuration("kafka.wait"),
		}, logger)
		if err != nil {
			logger.Fatal("ensure topic", zap.String("topic", t), zap.Error(err))
		}
	}
	logger.Info("kafka-init ok")
}
