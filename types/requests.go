package types

import "time"

// ListDatasetRequest is the payload for POST /v1/datasets.
type ListDatasetRequest struct {
	ContentHash string `json:"content_hash"`
	Price       uint64 `json:"price"`
	Description string `json:"description"`
	SizeBytes   uint64 `json:"size_bytes"`
	DataType    string `json:"data_type"`
}

// BatchListRequest is the payload for POST /v1/datasets/batch.
// The arrays must all have the same length.
type BatchListRequest struct {
	ContentHashes []string `json:"content_hashes"`
	Prices        []uint64 `json:"prices"`
	Descriptions  []string `json:"descriptions"`
	Sizes         []uint64 `json:"sizes"`
	DataTypes     []string `json:"data_types"`
}

// DatasetIDsResponse is returned by listing and index endpoints.
type DatasetIDsResponse struct {
	DatasetIDs []uint64 `json:"dataset_ids"`
	Count      int      `json:"count"`
}

// PriceRequest is the payload for PUT /v1/datasets/{id}/price and /subscription-price.
type PriceRequest struct {
	Price uint64 `json:"price"`
}

// AddVersionRequest is the payload for POST /v1/datasets/{id}/versions.
type AddVersionRequest struct {
	ContentHash string `json:"content_hash"`
	Description string `json:"description"`
	ChangeLog   string `json:"change_log"`
}

// AddVersionResponse carries the 1-based sequence number of the new version.
type AddVersionResponse struct {
	Version int `json:"version"`
}

// VersionsResponse is the response for GET /v1/datasets/{id}/versions.
type VersionsResponse struct {
	Versions []Version `json:"versions"`
	Count    int       `json:"count"`
}

// CategoryUpdateRequest is the payload for PUT /v1/datasets/{id}/category.
type CategoryUpdateRequest struct {
	CategoryID uint64 `json:"category_id"`
}

// TagsRequest is the payload for PUT /v1/datasets/{id}/tags.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// PaymentRequest is the payload for POST /v1/datasets/{id}/purchase.
type PaymentRequest struct {
	Payment uint64 `json:"payment"`
}

// PurchaseReceipt describes how a purchase payment was split.
type PurchaseReceipt struct {
	DatasetID    uint64 `json:"dataset_id"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Amount       uint64 `json:"amount"`
	Fee          uint64 `json:"fee"`
	SellerAmount uint64 `json:"seller_amount"`
}

// SubscribeRequest is the payload for POST /v1/datasets/{id}/subscribe.
type SubscribeRequest struct {
	Months  uint32 `json:"months"`
	Payment uint64 `json:"payment"`
}

// SubscribeResponse carries the stored subscription and the payment split.
type SubscribeResponse struct {
	Subscription Subscription `json:"subscription"`
	Fee          uint64       `json:"fee"`
	SellerAmount uint64       `json:"seller_amount"`
}

// CheckSubscriptionResponse is the response for GET /v1/datasets/{id}/check-subscription/{user}.
type CheckSubscriptionResponse struct {
	HasSubscription bool       `json:"has_subscription"`
	EndTime         *time.Time `json:"end_time,omitempty"`
}

// AccessRequest is the payload for PUT /v1/datasets/{id}/access.
type AccessRequest struct {
	IsPublic bool `json:"is_public"`
}

// HasAccessResponse is the response for GET /v1/datasets/{id}/access/{user}.
type HasAccessResponse struct {
	HasAccess bool `json:"has_access"`
}

// ReviewRequest is the payload for POST /v1/datasets/{id}/reviews.
type ReviewRequest struct {
	Rating  uint8  `json:"rating"`
	Comment string `json:"comment"`
}

// ReviewsResponse is the response for GET /v1/datasets/{id}/reviews.
type ReviewsResponse struct {
	Rating  uint64   `json:"rating"`
	Reviews []Review `json:"reviews"`
	Count   int      `json:"count"`
}

// CreateCategoryRequest is the payload for POST /v1/categories.
type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DatasetDetails is the response for GET /v1/datasets/{id}.
type DatasetDetails struct {
	Dataset
	CategoryID        uint64        `json:"category_id"`
	Tags              []string      `json:"tags"`
	Access            AccessControl `json:"access"`
	SubscriptionPrice uint64        `json:"subscription_price"`
	Rating            uint64        `json:"rating"`
	ReviewCount       int           `json:"review_count"`
	VersionCount      int           `json:"version_count"`
}

// DatasetIDResponse is returned by POST /v1/datasets.
type DatasetIDResponse struct {
	DatasetID uint64 `json:"dataset_id"`
}

// TagsResponse is the response for GET /v1/datasets/{id}/tags.
type TagsResponse struct {
	Tags []string `json:"tags"`
}

// GroupsRequest is the payload for PUT /v1/datasets/{id}/groups.
type GroupsRequest struct {
	Groups []string `json:"groups"`
}

// GroupAssignmentRequest is the payload for POST /v1/users/{user}/groups.
type GroupAssignmentRequest struct {
	Group string `json:"group"`
}

// GroupsResponse is the response for GET /v1/users/{user}/groups.
type GroupsResponse struct {
	Groups []string `json:"groups"`
}

// CategoryIDResponse is returned by POST /v1/categories.
type CategoryIDResponse struct {
	CategoryID uint64 `json:"category_id"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is the ledger error kind, e.g. "insufficient_payment".
	Code string `json:"code"`
}
