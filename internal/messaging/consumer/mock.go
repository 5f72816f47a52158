package consumer

import (
	"context"
	"errors"
	"log"

	"sampletrace/internal/models"
)

// MockConsumer serves anchor requests from an in-memory channel. Used by
// tests and by local runs where no broker is available; Enqueue stands in
// for the gateway's producer.
type MockConsumer struct {
	logger   *log.Logger
	messages chan *models.AnchorMessage
}

// NewMockConsumer creates a MockConsumer with a buffered in-memory queue.
func NewMockConsumer(logger *log.Logger) *MockConsumer {
	return &MockConsumer{
		logger:   logger,
		messages: make(chan *models.AnchorMessage, 64),
	}
}

// Enqueue adds one anchor request to the in-memory queue.
func (m *MockConsumer) Enqueue(msg *models.AnchorMessage) {
	m.messages <- msg
}

// Consume reads anchor requests from the channel.
func (m *MockConsumer) Consume(ctx context.Context) (msg *models.AnchorMessage, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		m.logger.Println("[MockConsumer] Context cancelled, stopping consumption")
		return nil, nil, ctx.Err()
	case msg := <-m.messages:
		if msg == nil {
			m.logger.Println("[MockConsumer] Message channel closed")
			return nil, nil, errors.New("message channel closed")
		}
		m.logger.Printf("[MockConsumer] Consumed message: request_id=%s sample_id=%s step=%d", msg.RequestID, msg.SampleID, msg.Step)

		ackCallback := func(success bool) {
			if success {
				m.logger.Printf("[MockConsumer] ACK received for message: request_id=%s", msg.RequestID)
			} else {
				m.logger.Printf("[MockConsumer] NACK received for message: request_id=%s. Re-queueing (mock)", msg.RequestID)
				select {
				case m.messages <- msg:
					m.logger.Printf("[MockConsumer] Message re-queued: request_id=%s", msg.RequestID)
				default:
					m.logger.Printf("[MockConsumer] Warning: Failed to re-queue message (channel full?): request_id=%s", msg.RequestID)
				}
			}
		}
		return msg, ackCallback, nil
	}
}

// Close closes the message channel.
func (m *MockConsumer) Close() error {
	m.logger.Println("[MockConsumer] Closing...")
	close(m.messages)
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
