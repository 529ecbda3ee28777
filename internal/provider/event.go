// Package provider defines the provider-neutral event type that push-event
// sources deliver to the event loop.
package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergegate/internal/vcs"
)

type Event struct {
	Provider string
	// DeliveryID is the unique ID the provider assigned to the event,
	// empty when the provider has none.
	DeliveryID string
	EventType  string
	// Push is the normalized push information the reconciler consumes.
	Push *vcs.PushEvent

	LogFields []zap.Field
}

func (e *Event) String() string {
	return fmt.Sprintf("%s/%s (deliveryID: %s)", e.Provider, e.EventType, e.DeliveryID)
}
