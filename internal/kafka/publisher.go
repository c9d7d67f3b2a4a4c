package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/circuit"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// Payload encodings
const (
	EncodingJSON  = "json"
	EncodingProto = "proto"
)

const (
	headerContentType = "content-type"
	contentTypeJSON   = "application/json"
	contentTypeProto  = "application/x-protobuf"
)

// Writer is the subset of *kafka.Writer the publisher needs
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig contains configuration for the snapshot publisher
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	Encoding     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	Breaker      circuit.Config
}

// DefaultPublisherConfig returns the publisher defaults
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "risk.metrics",
		Encoding:     EncodingJSON,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		Breaker:      circuit.DefaultConfig(),
	}
}

// SnapshotPublisher streams risk snapshots to a Kafka topic keyed by portfolio ID
type SnapshotPublisher struct {
	writer   Writer
	encoding string
	timeout  time.Duration
	breaker  *circuit.Breaker
	log      *logger.Logger
}

// NewSnapshotPublisher creates a publisher backed by a kafka-go writer
func NewSnapshotPublisher(config PublisherConfig) (*SnapshotPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.InvalidArgument("kafka publisher requires at least one broker")
	}
	if config.Topic == "" {
		return nil, errors.InvalidArgument("kafka publisher requires a topic")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return NewSnapshotPublisherWithWriter(w, config)
}

// NewSnapshotPublisherWithWriter creates a publisher around an existing writer
func NewSnapshotPublisherWithWriter(w Writer, config PublisherConfig) (*SnapshotPublisher, error) {
	switch config.Encoding {
	case "":
		config.Encoding = EncodingJSON
	case EncodingJSON, EncodingProto:
	default:
		return nil, errors.InvalidArgumentf("unsupported snapshot encoding %q", config.Encoding)
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultPublisherConfig().WriteTimeout
	}

	return &SnapshotPublisher{
		writer:   w,
		encoding: config.Encoding,
		timeout:  config.WriteTimeout,
		breaker:  circuit.New("kafka."+config.Topic, config.Breaker),
		log:      logger.GetLogger("kafka.publisher"),
	}, nil
}

// PublishSnapshot encodes and writes one snapshot
func (p *SnapshotPublisher) PublishSnapshot(ctx context.Context, snapshot models.RiskSnapshot) error {
	value, contentType, err := p.encode(snapshot)
	if err != nil {
		return errors.Internal("encode risk snapshot", err)
	}

	msg := kafka.Message{
		Key:   []byte(snapshot.PortfolioID),
		Value: value,
		Time:  snapshot.Timestamp,
		Headers: []kafka.Header{
			{Key: headerContentType, Value: []byte(contentType)},
		},
	}

	err = p.breaker.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return err
		}
		return errors.Wrapf(err, "publish snapshot for %s", snapshot.PortfolioID)
	}

	p.log.Debugf("Published risk snapshot for %s (%d bytes)", snapshot.PortfolioID, len(value))
	return nil
}

// Stats exposes the breaker state for health reporting
func (p *SnapshotPublisher) Stats() circuit.Stats {
	return p.breaker.Stats()
}

// Close flushes and closes the writer
func (p *SnapshotPublisher) Close() error {
	p.log.Info("Closing snapshot publisher")
	return p.writer.Close()
}

func (p *SnapshotPublisher) encode(snapshot models.RiskSnapshot) ([]byte, string, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, "", err
	}
	if p.encoding == EncodingJSON {
		return raw, contentTypeJSON, nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, "", err
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, "", err
	}
	value, err := proto.Marshal(s)
	return value, contentTypeProto, err
}

// DecodeSnapshot reverses the publisher encoding, for consumers of the topic
func DecodeSnapshot(msg kafka.Message) (models.RiskSnapshot, error) {
	var snapshot models.RiskSnapshot
	raw := msg.Value

	if headerValue(msg.Headers, headerContentType) == contentTypeProto {
		var s structpb.Struct
		if err := proto.Unmarshal(msg.Value, &s); err != nil {
			return snapshot, errors.InvalidArgumentf("decode protobuf snapshot: %v", err)
		}
		var err error
		if raw, err = json.Marshal(s.AsMap()); err != nil {
			return snapshot, errors.Internal("convert protobuf snapshot", err)
		}
	}

	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return snapshot, errors.InvalidArgumentf("decode snapshot: %v", err)
	}
	return snapshot, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
