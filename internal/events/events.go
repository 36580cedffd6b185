package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingUpdated       = "booking_updated"
	EventBookingPaid          = "booking_paid"
	EventBookingAssigned      = "booking_assigned"
	EventWorkItemCreated      = "work_item_created"
	EventWorkItemUpdated      = "work_item_updated"
	EventUserApproved         = "user_approved"
	EventUserDisabled         = "user_disabled"
	EventUserDeleted          = "user_deleted"
)

// BookingEventPayload is the booking snapshot carried by booking events.
type BookingEventPayload struct {
	BookingID     string  `json:"bookingId"`
	UserID        string  `json:"userId"`
	ServiceType   string  `json:"serviceType"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"paymentStatus,omitempty"`
	AssignedTo    *string `json:"assignedTo,omitempty"`
	WorkItemID    string  `json:"workItemId,omitempty"`
	PreviousState string  `json:"previousStatus,omitempty"`
	ChangedBy     string  `json:"changedBy,omitempty"`
}

// UserEventPayload describes a user directory change.
type UserEventPayload struct {
	UserID    string `json:"userId"`
	Role      string `json:"role,omitempty"`
	ChangedBy string `json:"changedBy,omitempty"`
}

// Event is a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Handlers run synchronously on the
// publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	onError     func(event *Event, err error)
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// OnError sets the callback for handler failures.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	onError := b.onError
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus drops it.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with a JSON payload.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}
