package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the lifecycle events written to the outbox.
type EventType string

const (
	EventActivitySubmitted EventType = "activity.submitted"
	EventActivityApproved  EventType = "activity.approved"
	EventActivityRejected  EventType = "activity.rejected"
	EventProfileCreated    EventType = "profile.created"
	EventProfileUpdated    EventType = "profile.updated"
	EventProfileDeleted    EventType = "profile.deleted"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateActivity AggregateType = "activity"
	AggregateProfile  AggregateType = "profile"
)

// OutboxDraft is an event staged in the same transaction as the state change.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

func newDraft(agg AggregateType, aggID string, evt EventType, partition string, payload interface{}) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  partition,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    time.Now(),
	}
}

// NewActivitySubmittedEvent records a new pending activity.
func NewActivitySubmittedEvent(a *Activity) OutboxDraft {
	return newDraft(AggregateActivity, a.ID, EventActivitySubmitted, a.UserID, a)
}

// NewActivityApprovedEvent records an approval together with the published result.
func NewActivityApprovedEvent(a *Activity, r *Result, reviewerID string) OutboxDraft {
	return newDraft(AggregateActivity, a.ID, EventActivityApproved, a.UserID, map[string]interface{}{
		"activity_id": a.ID,
		"user_id":     a.UserID,
		"result_id":   r.ID,
		"results":     r.Results,
		"reviewer_id": reviewerID,
	})
}

// NewActivityRejectedEvent records a rejection.
func NewActivityRejectedEvent(a *Activity, reviewerID string) OutboxDraft {
	return newDraft(AggregateActivity, a.ID, EventActivityRejected, a.UserID, map[string]string{
		"activity_id": a.ID,
		"user_id":     a.UserID,
		"reviewer_id": reviewerID,
	})
}

// NewProfileEvent records a profile lifecycle change.
func NewProfileEvent(evt EventType, p *Profile) OutboxDraft {
	return newDraft(AggregateProfile, p.UID, evt, p.UID, map[string]interface{}{
		"uid":      p.UID,
		"email":    p.Email,
		"role":     p.Role,
		"userType": p.UserType,
	})
}
