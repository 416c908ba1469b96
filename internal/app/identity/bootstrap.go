package identity

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/Gatekeep/internal/config/identity"
	"github.com/NordCoder/Gatekeep/internal/domain/user"
	"github.com/NordCoder/Gatekeep/internal/obs"
	"github.com/NordCoder/Gatekeep/internal/obs/retry"
	"github.com/NordCoder/Gatekeep/internal/outbox"
	kafkax "github.com/NordCoder/Gatekeep/internal/repository/kafka"
	pg "github.com/NordCoder/Gatekeep/internal/repository/postgres"
)

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	closer, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	return closer.Shutdown, nil
}

func initDB(ctx context.Context, cfg *config.Config) (*pg.DB, error) {
	return pg.New(ctx, cfg.DB)
}

// events is the outbox wiring: the sink used inside user transactions and the relay that drains it.
type events struct {
	sink     user.EventSink
	runner   *outbox.Runner
	producer *kafkax.Producer
}

func (e *events) Close() error {
	if e == nil || e.producer == nil {
		return nil
	}
	return e.producer.Close()
}

func initEvents(ctx context.Context, cfg *config.Config, db *pg.DB, logger *zap.Logger) (*events, error) {
	if !cfg.Events.Enable {
		logger.Info("user events disabled")
		return nil, nil
	}

	if err := kafkax.EnsureTopic(ctx, cfg.Events.Brokers, kafkax.TopicSpec{Name: cfg.Events.Topic}, logger); err != nil {
		// the writer auto-creates topics; a missing topic here is not fatal
		logger.Warn("ensure topic", zap.String("topic", cfg.Events.Topic), zap.Error(err))
	}

	producer := kafkax.NewProducer(cfg.Events.Brokers, cfg.Events.Topic).WithLogger(logger)
	repo := pg.NewOutboxRepo(db)
	dispatch := outbox.MakeGlobalOutboxHandler(
		kafkax.NewUserEventsKafka(producer),
		retry.PublishPolicy("outbox_user_events", logger),
	)

	return &events{
		sink:     outbox.NewSink(repo),
		runner:   outbox.NewOutboxRunner(logger, repo, dispatch, cfg.Events.Outbox),
		producer: producer,
	}, nil
}
