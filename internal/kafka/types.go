package kafka

import (
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

const (
	TopicEventLifecycle     = "EVENT_LIFECYCLE"
	TopicRegistrationStatus = "REGISTRATION_STATUS"
)

// Lifecycle actions.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionApproved = "approved"
	ActionRejected = "rejected"
	ActionDeleted  = "deleted"
)

// EventLifecycleMessage records a moderation or ownership change. Event holds
// the full record as it was at the time of the change, which is the only
// trace a rejected event leaves.
type EventLifecycleMessage struct {
	Action    string      `json:"action"`
	ActorID   string      `json:"actor_id"`
	ActorRole model.Role  `json:"actor_role"`
	Event     model.Event `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
}

// RegistrationMessage records a registration entering a new status.
type RegistrationMessage struct {
	RegistrationID string                   `json:"registration_id"`
	EventID        string                   `json:"event_id"`
	UserID         string                   `json:"user_id"`
	From           model.RegistrationStatus `json:"from,omitempty"`
	To             model.RegistrationStatus `json:"to"`
	ActorID        string                   `json:"actor_id"`
	Timestamp      time.Time                `json:"timestamp"`
}
