package types

// LedgerState is the full persisted state layout of a ledger, queryable
// without invoking a mutating operation. Snapshots are written in this shape.
type LedgerState struct {
	Operator      string `json:"operator"`
	FeeRate       uint64 `json:"fee_rate"`
	DatasetCount  uint64 `json:"dataset_count"`
	CategoryCount uint64 `json:"category_count"`
	EventSequence uint64 `json:"event_sequence"`

	Datasets           []Dataset                `json:"datasets"`
	Categories         []Category               `json:"categories"`
	UserDatasets       map[string][]uint64      `json:"user_datasets"`
	UserPurchases      map[string][]uint64      `json:"user_purchases"`
	Reviews            map[uint64][]Review      `json:"reviews"`
	RatingSums         map[uint64]uint64        `json:"rating_sums"`
	Versions           map[uint64][]Version     `json:"versions"`
	DatasetCategories  map[uint64]uint64        `json:"dataset_categories"`
	DatasetTags        map[uint64][]string      `json:"dataset_tags"`
	Access             map[uint64]AccessControl `json:"access"`
	UserGroups         map[string][]string      `json:"user_groups"`
	Subscriptions      []Subscription           `json:"subscriptions"`
	SubscriptionPrices map[uint64]uint64        `json:"subscription_prices"`

	// Balances is the payout book, present when payouts are settled in process.
	Balances map[string]uint64 `json:"balances,omitempty"`
}
