package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// scanner читает DLQ-топик по партициям в пределах снимка offset'ов на момент старта.
type scanner struct {
	opts     options
	client   offsetClient
	source   partitionSource
	producer replayProducer
	logger   *log.Entry
	now      func() time.Time
}

func (s *scanner) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if s.client == nil || s.source == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if s.opts.execute && s.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := s.client.Partitions(s.opts.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", s.opts.sourceTopic, err)
	}
	if len(partitions) == 0 {
		s.logger.WithField("topic", s.opts.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := s.opts.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := s.scanPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *scanner) scanPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := s.client.GetOffset(s.opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := s.client.GetOffset(s.opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if s.opts.fromNewest {
		start = max(newest-int64(budget), oldest)
	}

	pc, err := s.source.ConsumePartition(s.opts.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(s.opts.idleTimeout)
	defer idle.Stop()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.opts.idleTimeout)

			stats.scanned++
			if err := s.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (s *scanner) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	replay, ok, err := decodeDLQMessage(msg, s.opts, s.now())
	if err != nil {
		stats.skipped++
		s.logger.WithError(err).WithFields(fields).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		stats.skipped++
		return nil
	}

	fields["order_id"] = replay.key
	fields["event_type"] = replay.eventType
	fields["attempts"] = replay.attempts
	if !s.opts.execute {
		s.logger.WithFields(fields).WithField("last_error", replay.lastError).Info("dlq replay candidate")
		stats.replayed++
		return nil
	}

	if err := publishReplay(s.producer, replay); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	s.logger.WithFields(fields).Debug("dlq message replayed")
	stats.replayed++
	return nil
}

func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}
	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: msg.topic,
		Key:   sarama.StringEncoder(msg.key),
		Value: sarama.ByteEncoder(msg.value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.eventType)},
			{Key: []byte("replayed"), Value: []byte("true")},
		},
		Timestamp: time.Now().UTC(),
	})
	return err
}
