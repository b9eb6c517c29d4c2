package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// EventPublisher receives an event for every successful task submission.
// Publishing failures are reported but never undo the submission.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event *domain.TaskEvent) error
}
