// Package types defines common types used across the ledger, its HTTP API and the SDKs.
package types

import "time"

// EmptyPayloadHash is the SHA256 hash of an empty payload.
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Config contains configuration for the Producer and Consumer SDKs.
type Config struct {
	APIEndpoint        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	// Identity is the caller identity the SDK acts as (address or IAM principal).
	Identity      string
	Region        string
	ContentBucket string
	KMSKeyID      string
	QueueURL      string
}

// Dataset represents one listed data product in the ledger.
type Dataset struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	ContentHash string `json:"content_hash"`
	Price       uint64 `json:"price"`
	IsActive    bool   `json:"is_active"`
	Description string `json:"description"`
	SizeBytes   uint64 `json:"size_bytes"`
	DataType    string `json:"data_type"`
}

// Version is one immutable content snapshot in a dataset's history.
type Version struct {
	ContentHash string    `json:"content_hash"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	ChangeLog   string    `json:"change_log"`
}

// Category is a platform-curated dataset label.
type Category struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// Review is one rating and comment left by a purchaser.
type Review struct {
	Reviewer  string    `json:"reviewer"`
	Rating    uint8     `json:"rating"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// AccessControl is the per-dataset visibility state.
type AccessControl struct {
	IsPublic bool `json:"is_public"`
	// AllowedUsers is sorted for stable output.
	AllowedUsers []string `json:"allowed_users"`
	// AllowedGroups is stored for compatibility and never consulted by access checks.
	AllowedGroups []string `json:"allowed_groups"`
}
