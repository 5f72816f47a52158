package producer

import (
	"context"

	"sampletrace/internal/models"
)

// Producer defines the interface for the anchoring queue producer
type Producer interface {
	// Publish sends a single anchor request to the queue
	Publish(ctx context.Context, msg *models.AnchorMessage) error

	// Close closes the producer connection
	Close() error
}
