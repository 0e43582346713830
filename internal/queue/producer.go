package queue

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/model"
)

type Producer struct {
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

func (p *Producer) EnqueueImportJob(ctx context.Context, job model.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.ImportQueue, data).Err()
}

func (p *Producer) EnqueueReimportJob(ctx context.Context, job model.ReimportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.ReimportQueue, data).Err()
}
