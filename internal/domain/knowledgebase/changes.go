package knowledgebase

import "context"

// EventName is the kind of mutation a change record reports.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// ActorType tells who caused a mutation.
type ActorType string

const (
	ActorService ActorType = "Service"
	ActorCaller  ActorType = "Caller"
)

// ExpiryPrincipal identifies removals made by the expiry sweeper.
const ExpiryPrincipal = "knowledge-api.expiry"

type ChangeKeys struct {
	TenantID string `json:"tenantId"`
	ID       string `json:"id"`
}

type Actor struct {
	Type        ActorType `json:"type"`
	PrincipalID string    `json:"principalId"`
}

// ChangeRecord describes one mutation of the knowledge base files table.
type ChangeRecord struct {
	EventName EventName  `json:"eventName"`
	Keys      ChangeKeys `json:"keys"`
	OldImage  *File      `json:"oldImage,omitempty"`
	Actor     Actor      `json:"userIdentity"`
}

// IsExpiry reports whether the record is a removal made by the expiry sweeper.
func (r ChangeRecord) IsExpiry() bool {
	return r.EventName == EventRemove &&
		r.Actor.Type == ActorService &&
		r.Actor.PrincipalID == ExpiryPrincipal
}

// ChangePublisher delivers change records to the reaper.
type ChangePublisher interface {
	Publish(ctx context.Context, records []ChangeRecord) error
}
