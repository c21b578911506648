package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/scenetrack/internal/models"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL, "scenetrack-consumer")
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// Partition maps a subject to one of n workers.
func Partition(subject string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(subject) % uint64(n))
}

// ConsumeBatches starts consuming detection batches from the DETECTIONS stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeBatches(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, DetectionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", DetectionsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Second,
		MaxDeliver:    2,
		FilterSubject: DetectionsSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	// One channel per worker, picked by subject, so batches of a session are
	// handled in delivery order by a single worker.
	msgChs := make([]chan jetstream.Msg, workerCount)
	for i := range msgChs {
		msgChs[i] = make(chan jetstream.Msg, 4)
	}

	go func() {
		defer func() {
			for _, ch := range msgChs {
				close(ch)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(workerCount*4, jetstream.FetchMaxWait(time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch detections error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgChs[Partition(msg.Subject(), workerCount)] <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgChs[workerID] {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process detection batch error", "worker", workerID, "error", err, "subject", msg.Subject())
					_ = msg.Term()
				} else {
					_ = msg.Ack()
				}
			}
		}(i)
	}

	slog.Info("detection consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents starts consuming scene/eviction events (for the API to persist and broadcast).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process event error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

// SubscribeControl delivers control commands published with Producer.PublishControl.
func (c *Consumer) SubscribeControl(handler func(models.ControlCommand)) error {
	sub, err := c.nc.Subscribe(ControlSubject, func(msg *nats.Msg) {
		cmd, err := DecodeControl(msg.Data)
		if err != nil {
			slog.Warn("invalid control command", "error", err)
			return
		}
		handler(cmd)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ControlSubject, err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// SubscribeFrames delivers the live object frames of every session.
func (c *Consumer) SubscribeFrames(handler func(subject string, data []byte)) error {
	subject := ObjectsSubjectBase + ".*"
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// SubscribeRequests delivers detection requests for every session; used by
// detection sources that answer requests instead of streaming.
func (c *Consumer) SubscribeRequests(handler func(models.DetectionRequest)) error {
	subject := RequestsSubjectBase + ".*"
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var req models.DetectionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Warn("invalid detection request", "error", err)
			return
		}
		handler(req)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

func (c *Consumer) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.nc.Close()
}
