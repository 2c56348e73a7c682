package api

import (
	"fmt"
	"time"

	"github.com/helix-tools/ledger-go/types"
)

// TestPrefix is used to identify test resources for cleanup.
const TestPrefix = "TEST_"

// GenerateTestID generates a unique test run identifier.
func GenerateTestID() string {
	return fmt.Sprintf("int-%s-%d", time.Now().Format("20060102150405"), time.Now().UnixMilli()%10000)
}

// NewTestListing creates a dataset listing with a content hash unique to testID.
func NewTestListing(testID string, price uint64) types.ListDatasetRequest {
	return types.ListDatasetRequest{
		ContentHash: fmt.Sprintf("%scontent_%s", TestPrefix, testID),
		Price:       price,
		Description: fmt.Sprintf("Integration test dataset - %s", testID),
		SizeBytes:   1024,
		DataType:    "application/x-ndjson",
	}
}

// NewTestBatch creates a batch listing of n datasets priced 100, 200, ...
func NewTestBatch(testID string, n int) types.BatchListRequest {
	var req types.BatchListRequest
	for i := range n {
		item := NewTestListing(fmt.Sprintf("%s-%d", testID, i), uint64(i+1)*100)
		req.ContentHashes = append(req.ContentHashes, item.ContentHash)
		req.Prices = append(req.Prices, item.Price)
		req.Descriptions = append(req.Descriptions, item.Description)
		req.Sizes = append(req.Sizes, item.SizeBytes)
		req.DataTypes = append(req.DataTypes, item.DataType)
	}

	return req
}

// NewTestCategory creates a category name and description unique to testID.
func NewTestCategory(testID string) types.CreateCategoryRequest {
	return types.CreateCategoryRequest{
		Name:        fmt.Sprintf("%scategory_%s", TestPrefix, testID),
		Description: "Integration test category",
	}
}
