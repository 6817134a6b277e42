// eventshipper consumes workflow events from Kafka and pushes them to Loki in batches.
// Offsets are committed only after Loki accepts a batch, so a crash replays rather than drops.
// Set KAFKA_BROKERS, EVENTS_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/telemetry/loki"
)

const (
	maxBatch      = 100
	flushInterval = time.Second
	pushTimeout   = 10 * time.Second
	retryBackoff  = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.EventsKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("eventshipper: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		log.Fatalf("eventshipper: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.EventsKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("eventshipper: consuming from %s (group %s), pushing to %s", cfg.EventsKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)

	msgs := make(chan kafka.Message, maxBatch)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(msgs)
		for {
			msg, err := reader.FetchMessage(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				log.Printf("eventshipper: kafka fetch error: %v", err)
				continue
			}
			select {
			case msgs <- msg:
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		return ship(gctx, msgs, client, reader)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("eventshipper: %v", err)
	}
	log.Println("eventshipper: stopped")
}

// ship batches messages until maxBatch or flushInterval, pushes each batch, and commits it.
// A failed push is retried until it succeeds or ctx ends; uncommitted messages are redelivered.
func ship(ctx context.Context, msgs <-chan kafka.Message, client *loki.Client, reader *kafka.Reader) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]kafka.Message, 0, maxBatch)

	flush := func() {
		for len(batch) > 0 {
			values := make([][]byte, len(batch))
			for i, m := range batch {
				values[i] = m.Value
			}
			pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			err := client.PushEvents(pushCtx, values...)
			cancel()
			if err == nil {
				if err := reader.CommitMessages(context.Background(), batch...); err != nil {
					log.Printf("eventshipper: commit failed: %v", err)
				}
				batch = batch[:0]
				return
			}
			log.Printf("eventshipper: loki push of %d events failed: %v", len(batch), err)
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return
			}
		}
	}

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
