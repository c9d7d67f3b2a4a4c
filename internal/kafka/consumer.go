package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// Reader is the subset of *kafka.Reader the consumer needs
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LoanBookHandler receives every valid loan book read from the topic
type LoanBookHandler func(ctx context.Context, book *models.LoanBook) error

// ConsumerConfig contains configuration for the loan book consumer
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LoanBookConsumer ingests loan books published by upstream systems.
// Malformed or invalid books are logged and committed so they do not block the partition.
type LoanBookConsumer struct {
	reader  Reader
	handler LoanBookHandler
	log     *logger.Logger
}

// NewLoanBookConsumer creates a consumer group reader on the loan book topic
func NewLoanBookConsumer(config ConsumerConfig, handler LoanBookHandler) (*LoanBookConsumer, error) {
	if len(config.Brokers) == 0 || config.Topic == "" || config.GroupID == "" {
		return nil, errors.InvalidArgument("kafka consumer requires brokers, topic and group ID")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		MaxWait:        time.Second,
	})
	return NewLoanBookConsumerWithReader(r, handler), nil
}

// NewLoanBookConsumerWithReader creates a consumer around an existing reader
func NewLoanBookConsumerWithReader(r Reader, handler LoanBookHandler) *LoanBookConsumer {
	return &LoanBookConsumer{
		reader:  r,
		handler: handler,
		log:     logger.GetLogger("kafka.consumer"),
	}
}

// Run consumes until ctx is cancelled or the reader fails
func (c *LoanBookConsumer) Run(ctx context.Context) error {
	c.log.Info("Starting loan book consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Loan book consumer stopped")
				return nil
			}
			return errors.Wrap(err, "fetch loan book message")
		}

		if err := c.process(ctx, msg); err != nil {
			// handler failures are retried by not committing
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit loan book message")
		}
	}
}

func (c *LoanBookConsumer) process(ctx context.Context, msg kafka.Message) error {
	var book models.LoanBook
	if err := json.Unmarshal(msg.Value, &book); err != nil {
		c.log.Warnf("Skipping malformed loan book at offset %d: %v", msg.Offset, err)
		return nil
	}
	if book.ID == "" {
		book.ID = string(msg.Key)
	}
	if err := models.ValidateLoanBook(book); err != nil {
		c.log.Warnf("Skipping invalid loan book %s at offset %d: %v", book.ID, msg.Offset, err)
		return nil
	}

	if err := c.handler(ctx, &book); err != nil {
		return errors.Wrapf(err, "handle loan book %s", book.ID)
	}
	c.log.Debugf("Ingested loan book %s with %d loans", book.ID, len(book.Loans))
	return nil
}

// Close closes the reader
func (c *LoanBookConsumer) Close() error {
	return c.reader.Close()
}
