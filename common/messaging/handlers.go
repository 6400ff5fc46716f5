package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EnsureStream ensures a stream exists with the specified subjects, widening
// an existing stream's subject list when needed.
func EnsureStream(ctx context.Context, client *NatsBroker, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := client.GetStream(ctx, name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
			return nil, err
		}
		return client.CreateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: subjects,
		})
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, err
	}

	cfg := info.Config
	existing := make(map[string]struct{}, len(cfg.Subjects))
	for _, s := range cfg.Subjects {
		existing[s] = struct{}{}
	}

	changed := false
	for _, s := range subjects {
		if _, ok := existing[s]; !ok {
			cfg.Subjects = append(cfg.Subjects, s)
			changed = true
		}
	}

	if !changed {
		return stream, nil
	}

	return client.CreateStream(ctx, cfg)
}

// JobConsumer returns the durable pull consumer shared by the scrape worker
// pool. Explicit acks: a redelivered message is the channel's retry.
func JobConsumer(ctx context.Context, client *NatsBroker) (jetstream.Consumer, error) {
	stream, err := EnsureStream(ctx, client, StreamScrapeJobs, []string{SubjectScrapeJobs})
	if err != nil {
		return nil, err
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          ConsumerScrapeJobs,
		Durable:       ConsumerScrapeJobs,
		FilterSubject: SubjectScrapeJobs,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("stream", StreamScrapeJobs).
		Str("consumer", ConsumerScrapeJobs).
		Msg("Got JetStream pull consumer")

	return consumer, nil
}
