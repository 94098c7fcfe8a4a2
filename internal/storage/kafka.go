package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"bitmex_orderbook/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by the audit store.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topicAdmin is the subset of sarama.ClusterAdmin used by the audit store.
type topicAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	DeleteTopic(topic string) error
	Close() error
}

// KafkaConfig configures the streaming audit backend.
type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	BatchTimeout time.Duration
}

// KafkaAuditStore publishes each record to topic TopicPrefix+collection.
// Values are protobuf-encoded google.protobuf.Struct messages.
type KafkaAuditStore struct {
	writer messageWriter
	admin  topicAdmin
	prefix string

	mu sync.Mutex // serializes DropIfExists against the admin client
}

// NewKafkaAuditStore connects the producer and the cluster admin.
func NewKafkaAuditStore(cfg KafkaConfig) (*KafkaAuditStore, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	admin, err := sarama.NewClusterAdmin(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka admin: %w", err)
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}

	return newKafkaAuditStore(writer, admin, cfg.TopicPrefix), nil
}

func newKafkaAuditStore(w messageWriter, admin topicAdmin, prefix string) *KafkaAuditStore {
	return &KafkaAuditStore{writer: w, admin: admin, prefix: prefix}
}

func (s *KafkaAuditStore) topic(collection string) string {
	return s.prefix + collection
}

func (s *KafkaAuditStore) InsertOne(ctx context.Context, collection string, rec domain.Record) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	value, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	key := collection
	if side, ok := rec.Fields()["side"].(string); ok {
		key = side
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic(collection),
		Key:   []byte(key),
		Value: value,
		Time:  rec.Time().Time(),
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic(collection), err)
	}
	return nil
}

func (s *KafkaAuditStore) DropIfExists(ctx context.Context, collection string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	topics, err := s.admin.ListTopics()
	if err != nil {
		return fmt.Errorf("kafka list topics: %w", err)
	}

	name := s.topic(collection)
	if _, ok := topics[name]; !ok {
		return nil
	}
	if err := s.admin.DeleteTopic(name); err != nil {
		return fmt.Errorf("kafka delete topic %s: %w", name, err)
	}
	return nil
}

func (s *KafkaAuditStore) Close() error {
	return errors.Join(s.writer.Close(), s.admin.Close())
}

func encodeRecord(rec domain.Record) ([]byte, error) {
	st, err := structpb.NewStruct(rec.Fields())
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}
