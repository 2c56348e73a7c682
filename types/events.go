package types

import "time"

// EventType names a ledger notification.
type EventType string

const (
	EventDatasetListed          EventType = "dataset.listed"
	EventDatasetPriceUpdated    EventType = "dataset.price_updated"
	EventDatasetDeactivated     EventType = "dataset.deactivated"
	EventDatasetPurchased       EventType = "dataset.purchased"
	EventDatasetReviewed        EventType = "dataset.reviewed"
	EventDatasetVersionAdded    EventType = "dataset.version_added"
	EventDatasetCategoryUpdated EventType = "dataset.category_updated"
	EventDatasetTagsUpdated     EventType = "dataset.tags_updated"
	EventCategoryAdded          EventType = "category.added"
	EventCategoryDeactivated    EventType = "category.deactivated"
	EventAccessUpdated          EventType = "access.updated"
	EventAccessGranted          EventType = "access.granted"
	EventAccessRevoked          EventType = "access.revoked"
	EventUserGroupAssigned      EventType = "access.group_assigned"
	EventSubscriptionPriceSet   EventType = "subscription.price_set"
	EventSubscriptionCreated    EventType = "subscription.created"
	EventSubscriptionCancelled  EventType = "subscription.cancelled"
)

// Event is the notification emitted once per committed mutation.
// Only the fields named by the operation are populated.
type Event struct {
	ID        string    `json:"event_id"`
	Type      EventType `json:"event_type"`
	Sequence  uint64    `json:"sequence"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`

	DatasetID    uint64     `json:"dataset_id,omitempty"`
	CategoryID   uint64     `json:"category_id,omitempty"`
	User         string     `json:"user,omitempty"`
	Group        string     `json:"group,omitempty"`
	ContentHash  string     `json:"content_hash,omitempty"`
	Price        uint64     `json:"price,omitempty"`
	Amount       uint64     `json:"amount,omitempty"`
	Fee          uint64     `json:"fee,omitempty"`
	SellerAmount uint64     `json:"seller_amount,omitempty"`
	Months       uint32     `json:"months,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Rating       uint8      `json:"rating,omitempty"`
	Version      int        `json:"version,omitempty"`
	IsPublic     *bool      `json:"is_public,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Groups       []string   `json:"groups,omitempty"`
	Name         string     `json:"name,omitempty"`
}
