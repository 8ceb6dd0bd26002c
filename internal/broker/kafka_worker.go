package broker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrEmptyName = errors.New("task has no company name")

type KafkaProducerClient struct {
	resultChan <-chan *model.NameCheckResult
	cfg        *config.ProducerConfig
	log        *slog.Logger
	wg         *sync.WaitGroup
}

func NewKafkaProducer(resultChan <-chan *model.NameCheckResult, cfg *config.ProducerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaProducerClient {
	return &KafkaProducerClient{
		resultChan: resultChan,
		cfg:        cfg,
		log:        log,
		wg:         wg,
	}
}

// Run publishes results until resultChan is closed.
func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))

	w := kafka.Writer{
		Addr:         kafka.TCP(strings.Split(p.cfg.Addr, ",")...),
		Topic:        p.cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  p.cfg.MaxAttempts,
		BatchSize:    1,                // the parameter is controlled by 'batchTicker' variable
		BatchTimeout: time.Millisecond, // the parameter is controlled by 'batch' variable
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.cfg.RequiredAsks),
		Async:        p.cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	defer func() {
		err := w.Close()
		if err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	writeMessage := func(batch []kafka.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		err := w.WriteMessages(ctx, batch...)
		if err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			return
		}
		p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
	}

	for result := range p.resultChan {
		m, err := EncodeResult(result)
		if err != nil {
			p.log.Error("marshaling error.", slog.String("err", err.Error()), slog.String("id", result.ID))
			continue
		}
		batch = append(batch, m)
		select {
		case <-batchTicker.C:
			writeMessage(batch)
			batch = batch[:0]
		default:
			if len(batch) >= p.cfg.BatchSize {
				writeMessage(batch)
				batch = batch[:0]
			}
		}
	}
	// Some messages may remain in the batch after resultChan is closed
	if len(batch) > 0 {
		p.log.Debug("messages in batch.", slog.Int("count", len(batch)))
		writeMessage(batch)
	}
	p.log.Info("stopping kafka writer.")
}

// EncodeResult builds the kafka message for a result, keyed by the task id.
func EncodeResult(result *model.NameCheckResult) (kafka.Message, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(result.ID), Value: body}, nil
}

type KafkaConsumerClient struct {
	taskChan chan<- *model.NameCheckTask
	cfg      *config.ConsumerConfig
	log      *slog.Logger
	wg       *sync.WaitGroup
}

func NewKafkaConsumer(taskChan chan<- *model.NameCheckTask, cfg *config.ConsumerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaConsumerClient {
	return &KafkaConsumerClient{
		taskChan: taskChan,
		cfg:      cfg,
		log:      log,
		wg:       wg,
	}
}

// Run reads tasks until ctx is done. taskChan is shared with the HTTP API, the caller closes it.
func (c *KafkaConsumerClient) Run(ctx context.Context) {
	c.log.Info("starting kafka consumer.", slog.String("topic", c.cfg.ReadTopicName))
	defer c.wg.Done()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          strings.Split(c.cfg.Brokers, ","),
		Topic:            c.cfg.ReadTopicName,
		GroupID:          c.cfg.GroupID,
		MaxWait:          c.cfg.MaxWait,
		ReadBatchTimeout: c.cfg.ReadBatchTimeout,
	})
	defer func() {
		c.log.Info("stopping kafka reader.")
		if err := r.Close(); err != nil {
			c.log.Error("failed to close kafka reader.", slog.String("err", err.Error()))
		}
	}()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("failed to read message from kafka.", slog.String("err", err.Error()))
			continue
		}
		c.log.Debug("successfully read messages from kafka.")

		task, err := DecodeTask(m)
		if err != nil {
			c.log.Error("failed to unmarshal message.", slog.String("err", err.Error()))
			continue
		}
		select {
		case c.taskChan <- task:
		case <-ctx.Done():
			return
		}
	}
}

// DecodeTask parses a task message. Tasks without an id get a new one.
func DecodeTask(m kafka.Message) (*model.NameCheckTask, error) {
	var task model.NameCheckTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Name) == "" {
		return nil, ErrEmptyName
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	return &task, nil
}
