package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/circuit"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testSnapshot() models.RiskSnapshot {
	return models.RiskSnapshot{
		PortfolioID: "retail-book",
		Timestamp:   time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC),
		Portfolio:   models.PortfolioSummary{LoanCount: 3, TotalExposure: 3_500_000, ExpectedLoss: 20_870},
		Metrics: models.RiskMetrics{
			VaR99:               21_130.27,
			SectorConcentration: map[string]float64{"retail": 0.25, "real_estate": 0.75},
		},
		Regulatory: models.RegulatoryRatios{RWA: 2_150_000, CoverageRatio: 0.04174},
	}
}

func TestPublishSnapshotEncodings(t *testing.T) {
	for _, encoding := range []string{EncodingJSON, EncodingProto} {
		t.Run(encoding, func(t *testing.T) {
			w := &fakeWriter{}
			p, err := NewSnapshotPublisherWithWriter(w, PublisherConfig{Topic: "risk.metrics", Encoding: encoding})
			require.NoError(t, err)

			require.NoError(t, p.PublishSnapshot(context.Background(), testSnapshot()))
			require.Len(t, w.messages, 1)
			msg := w.messages[0]
			assert.Equal(t, "retail-book", string(msg.Key))

			decoded, err := DecodeSnapshot(msg)
			require.NoError(t, err)
			assert.Equal(t, "retail-book", decoded.PortfolioID)
			assert.True(t, decoded.Timestamp.Equal(testSnapshot().Timestamp))
			assert.Equal(t, 3, decoded.Portfolio.LoanCount)
			assert.Equal(t, 2_150_000.0, decoded.Regulatory.RWA)
			assert.Equal(t, 0.75, decoded.Metrics.SectorConcentration["real_estate"])

			require.NoError(t, p.Close())
			assert.True(t, w.closed)
		})
	}
}

func TestPublisherRejectsUnknownEncoding(t *testing.T) {
	_, err := NewSnapshotPublisherWithWriter(&fakeWriter{}, PublisherConfig{Topic: "t", Encoding: "avro"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	_, err = NewSnapshotPublisher(PublisherConfig{Topic: "t"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestPublisherTripsBreaker(t *testing.T) {
	w := &fakeWriter{err: kafka.LeaderNotAvailable}
	p, err := NewSnapshotPublisherWithWriter(w, PublisherConfig{
		Topic:   "risk.metrics",
		Breaker: circuit.Config{MaxFailures: 2, OpenTimeout: time.Hour},
	})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, p.PublishSnapshot(ctx, testSnapshot()), kafka.LeaderNotAvailable)
	assert.ErrorIs(t, p.PublishSnapshot(ctx, testSnapshot()), kafka.LeaderNotAvailable)
	assert.ErrorIs(t, p.PublishSnapshot(ctx, testSnapshot()), circuit.ErrOpen)
	assert.Equal(t, "open", p.Stats().State)
}

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func bookMessage(t *testing.T, offset int64, key string, book models.LoanBook) kafka.Message {
	t.Helper()
	value, err := json.Marshal(book)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(key), Value: value}
}

func TestLoanBookConsumerSkipsBadMessages(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte("{not json")},
		bookMessage(t, 2, "corp", models.LoanBook{Loans: []models.Loan{{ID: "L-1", OutstandingAmount: 10}}}),
		bookMessage(t, 3, "bad", models.LoanBook{Loans: []models.Loan{{ID: "L-1", PD: models.Float(3)}}}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var ingested []string
	c := NewLoanBookConsumerWithReader(reader, func(_ context.Context, book *models.LoanBook) error {
		ingested = append(ingested, book.ID)
		// the reader still drains what it holds, then sees the cancellation
		cancel()
		return nil
	})

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, []string{"corp"}, ingested)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

func TestLoanBookConsumerStopsOnHandlerError(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		bookMessage(t, 7, "", models.LoanBook{ID: "corp"}),
	}}
	c := NewLoanBookConsumerWithReader(reader, func(context.Context, *models.LoanBook) error {
		return errors.Unavailable("store down")
	})

	err := c.Run(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))
	assert.Empty(t, reader.committed)
}
