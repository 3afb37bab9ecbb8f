package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	brokersEnv         = "VFOODY_KAFKA_BROKERS"
)

type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	eventType   string
	orderID     string
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (a saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaSource) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// connect открывает клиент и consumer; producer нужен только в режиме -execute.
var connect = func(opts options) (offsetClient, partitionSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "vfoody-dlq-reprocess"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{consumer: consumer}
	if !opts.execute {
		return client, source, nil, nil
	}

	producer, err := kafka.NewSyncProducer(opts.brokers, "vfoody-dlq-reprocess")
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	opts, err := parseOptions(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseOptions(fs *flag.FlagSet, args []string, getenv func(string) string) (options, error) {
	var (
		brokersRaw string
		opts       options
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: "+brokersEnv+")")
	fs.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&opts.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to replay order events into")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	fs.StringVar(&opts.eventType, "event-type", "", "replay only this event type, e.g. order.status_changed")
	fs.StringVar(&opts.orderID, "order-id", "", "replay only events of this order")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(brokersEnv)
	}
	opts.brokers = parseBrokers(brokersRaw)
	opts.eventType = strings.TrimSpace(opts.eventType)
	opts.orderID = strings.TrimSpace(opts.orderID)

	var errs []error
	if len(opts.brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka brokers are required (-brokers or %s)", brokersEnv))
	}
	if strings.TrimSpace(opts.sourceTopic) == "" {
		errs = append(errs, errors.New("source-topic is required"))
	}
	if strings.TrimSpace(opts.targetTopic) == "" {
		errs = append(errs, errors.New("target-topic is required"))
	}
	if opts.sourceTopic == opts.targetTopic && opts.sourceTopic != "" {
		errs = append(errs, errors.New("source-topic and target-topic must differ"))
	}
	if opts.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if opts.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return options{}, err
	}
	return opts, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, opts options) error {
	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": opts.sourceTopic,
		"target_topic": opts.targetTopic,
		"limit":        opts.limit,
		"execute":      opts.execute,
		"event_type":   opts.eventType,
		"order_id":     opts.orderID,
	}).Info("starting dlq replay")

	client, source, producer, err := connect(opts)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	s := &scanner{
		opts:     opts,
		client:   client,
		source:   source,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
	stats, err := s.run(ctx)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
