package main

import (
	"context"
	"os/signal"
	"syscall"

	"studio"
	"studio/internal/api/models"
	"studio/internal/realtime"

	"github.com/nats-io/nats.go"
)

// Follows a running studio over NATS and logs each worker event, e.g. to watch a long
// training run from another terminal.
func main() {
	studio.InitConfig(".env")
	cfg := studio.GetConfig()

	nc, err := nats.Connect(cfg.NatsConfig.URL, nats.Name("studio-tail"))
	if err != nil {
		studio.Logger.Fatal().Err(err).Str("url", cfg.NatsConfig.URL).Msg("NATS connect failed")
	}
	defer nc.Drain()

	_, err = realtime.SubscribeEvents(nc, cfg.NatsConfig.Subject, func(ev models.Event) {
		log := studio.Logger.Info().Str("event", string(ev.Tag()))
		switch e := ev.(type) {
		case models.EpochEnd:
			log = log.Int("epoch", e.Epoch).Float64("loss", e.Loss).Float64("accuracy", e.Accuracy)
		case models.TrainingComplete:
			log = log.Float64("finalAccuracy", e.FinalAccuracy)
		case models.ErrorEvent:
			log = studio.Logger.Error().Str("event", string(ev.Tag())).Str("source", string(e.Source)).Str("message", e.Message)
		}
		log.Msg("Worker event")
	}, studio.Logger)
	if err != nil {
		studio.Logger.Fatal().Err(err).Msg("NATS subscribe failed")
	}

	studio.Logger.Info().Str("subject", cfg.NatsConfig.Subject+".>").Msg("Following studio events")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
