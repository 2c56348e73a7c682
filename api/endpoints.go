package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/helix-tools/ledger-go/types"
)

func datasetPath(id uint64, suffix string) string {
	return fmt.Sprintf("/v1/datasets/%d%s", id, suffix)
}

func userPath(user, suffix string) string {
	return "/v1/users/" + url.PathEscape(user) + suffix
}

// ListDataset registers a new dataset owned by the client identity.
func (c *Client) ListDataset(ctx context.Context, req types.ListDatasetRequest) (uint64, error) {
	var resp types.DatasetIDResponse
	if err := c.Post(ctx, "/v1/datasets", req, &resp); err != nil {
		return 0, err
	}

	return resp.DatasetID, nil
}

// BatchListDatasets registers several datasets atomically.
func (c *Client) BatchListDatasets(ctx context.Context, req types.BatchListRequest) ([]uint64, error) {
	var resp types.DatasetIDsResponse
	if err := c.Post(ctx, "/v1/datasets/batch", req, &resp); err != nil {
		return nil, err
	}

	return resp.DatasetIDs, nil
}

// GetDataset fetches everything stored about a dataset.
func (c *Client) GetDataset(ctx context.Context, id uint64) (types.DatasetDetails, error) {
	var details types.DatasetDetails
	err := c.Get(ctx, datasetPath(id, ""), &details)

	return details, err
}

// UpdateDatasetPrice sets a new purchase price.
func (c *Client) UpdateDatasetPrice(ctx context.Context, id, price uint64) error {
	return c.Put(ctx, datasetPath(id, "/price"), types.PriceRequest{Price: price}, nil)
}

// DeactivateDataset delists a dataset.
func (c *Client) DeactivateDataset(ctx context.Context, id uint64) error {
	return c.Post(ctx, datasetPath(id, "/deactivate"), nil, nil)
}

// AddDatasetVersion appends a content version and returns its 1-based number.
func (c *Client) AddDatasetVersion(ctx context.Context, id uint64, req types.AddVersionRequest) (int, error) {
	var resp types.AddVersionResponse
	if err := c.Post(ctx, datasetPath(id, "/versions"), req, &resp); err != nil {
		return 0, err
	}

	return resp.Version, nil
}

// GetDatasetVersions returns the version history, oldest first.
func (c *Client) GetDatasetVersions(ctx context.Context, id uint64) ([]types.Version, error) {
	var resp types.VersionsResponse
	if err := c.Get(ctx, datasetPath(id, "/versions"), &resp); err != nil {
		return nil, err
	}

	return resp.Versions, nil
}

// UpdateDatasetCategory assigns an active category to a dataset.
func (c *Client) UpdateDatasetCategory(ctx context.Context, id, categoryID uint64) error {
	return c.Put(ctx, datasetPath(id, "/category"), types.CategoryUpdateRequest{CategoryID: categoryID}, nil)
}

// UpdateDatasetTags replaces the tag set of a dataset.
func (c *Client) UpdateDatasetTags(ctx context.Context, id uint64, tags []string) error {
	return c.Put(ctx, datasetPath(id, "/tags"), types.TagsRequest{Tags: tags}, nil)
}

// GetDatasetTags returns the tag set of a dataset.
func (c *Client) GetDatasetTags(ctx context.Context, id uint64) ([]string, error) {
	var resp types.TagsResponse
	if err := c.Get(ctx, datasetPath(id, "/tags"), &resp); err != nil {
		return nil, err
	}

	return resp.Tags, nil
}

// PurchaseDataset buys a dataset with the attached payment.
func (c *Client) PurchaseDataset(ctx context.Context, id, payment uint64) (types.PurchaseReceipt, error) {
	var receipt types.PurchaseReceipt
	err := c.Post(ctx, datasetPath(id, "/purchase"), types.PaymentRequest{Payment: payment}, &receipt)

	return receipt, err
}

// SetSubscriptionPrice sets the per-month subscription price.
func (c *Client) SetSubscriptionPrice(ctx context.Context, id, price uint64) error {
	return c.Put(ctx, datasetPath(id, "/subscription-price"), types.PriceRequest{Price: price}, nil)
}

// Subscribe opens or replaces a subscription for the given number of months.
func (c *Client) Subscribe(ctx context.Context, id uint64, months uint32, payment uint64) (types.SubscribeResponse, error) {
	var resp types.SubscribeResponse
	err := c.Post(ctx, datasetPath(id, "/subscribe"), types.SubscribeRequest{Months: months, Payment: payment}, &resp)

	return resp, err
}

// CancelSubscription cancels the client identity's subscription.
func (c *Client) CancelSubscription(ctx context.Context, id uint64) error {
	return c.Post(ctx, datasetPath(id, "/cancel-subscription"), nil, nil)
}

// CheckSubscription reports whether user holds a current subscription.
func (c *Client) CheckSubscription(ctx context.Context, id uint64, user string) (types.CheckSubscriptionResponse, error) {
	var resp types.CheckSubscriptionResponse
	err := c.Get(ctx, datasetPath(id, "/check-subscription/"+url.PathEscape(user)), &resp)

	return resp, err
}

// SetDatasetAccess toggles public visibility.
func (c *Client) SetDatasetAccess(ctx context.Context, id uint64, isPublic bool) error {
	return c.Put(ctx, datasetPath(id, "/access"), types.AccessRequest{IsPublic: isPublic}, nil)
}

// GetAccessControl returns the visibility state of a dataset.
func (c *Client) GetAccessControl(ctx context.Context, id uint64) (types.AccessControl, error) {
	var ac types.AccessControl
	err := c.Get(ctx, datasetPath(id, "/access"), &ac)

	return ac, err
}

// GrantAccess adds user to the allow-list.
func (c *Client) GrantAccess(ctx context.Context, id uint64, user string) error {
	return c.Post(ctx, datasetPath(id, "/grant/"+url.PathEscape(user)), nil, nil)
}

// RevokeAccess removes user from the allow-list.
func (c *Client) RevokeAccess(ctx context.Context, id uint64, user string) error {
	return c.Delete(ctx, datasetPath(id, "/grant/"+url.PathEscape(user)))
}

// HasAccess reports whether user may read the dataset content.
func (c *Client) HasAccess(ctx context.Context, id uint64, user string) (bool, error) {
	var resp types.HasAccessResponse
	if err := c.Get(ctx, datasetPath(id, "/access/"+url.PathEscape(user)), &resp); err != nil {
		return false, err
	}

	return resp.HasAccess, nil
}

// SetAllowedGroups stores the allowed group list of a dataset.
func (c *Client) SetAllowedGroups(ctx context.Context, id uint64, groups []string) error {
	return c.Put(ctx, datasetPath(id, "/groups"), types.GroupsRequest{Groups: groups}, nil)
}

// ReviewDataset rates a purchased dataset.
func (c *Client) ReviewDataset(ctx context.Context, id uint64, rating uint8, comment string) error {
	return c.Post(ctx, datasetPath(id, "/reviews"), types.ReviewRequest{Rating: rating, Comment: comment}, nil)
}

// GetDatasetReviews returns the reviews and mean rating of a dataset.
func (c *Client) GetDatasetReviews(ctx context.Context, id uint64) (types.ReviewsResponse, error) {
	var resp types.ReviewsResponse
	err := c.Get(ctx, datasetPath(id, "/reviews"), &resp)

	return resp, err
}

// CreateCategory adds a category. Operator only.
func (c *Client) CreateCategory(ctx context.Context, name, description string) (uint64, error) {
	var resp types.CategoryIDResponse
	if err := c.Post(ctx, "/v1/categories", types.CreateCategoryRequest{Name: name, Description: description}, &resp); err != nil {
		return 0, err
	}

	return resp.CategoryID, nil
}

// GetCategory fetches a category.
func (c *Client) GetCategory(ctx context.Context, id uint64) (types.Category, error) {
	var category types.Category
	err := c.Get(ctx, fmt.Sprintf("/v1/categories/%d", id), &category)

	return category, err
}

// DeactivateCategory retires a category. Operator only.
func (c *Client) DeactivateCategory(ctx context.Context, id uint64) error {
	return c.Post(ctx, fmt.Sprintf("/v1/categories/%d/deactivate", id), nil, nil)
}

// GetUserDatasets returns the ids listed by user.
func (c *Client) GetUserDatasets(ctx context.Context, user string) ([]uint64, error) {
	var resp types.DatasetIDsResponse
	if err := c.Get(ctx, userPath(user, "/datasets"), &resp); err != nil {
		return nil, err
	}

	return resp.DatasetIDs, nil
}

// GetUserPurchases returns the ids purchased by user.
func (c *Client) GetUserPurchases(ctx context.Context, user string) ([]uint64, error) {
	var resp types.DatasetIDsResponse
	if err := c.Get(ctx, userPath(user, "/purchases"), &resp); err != nil {
		return nil, err
	}

	return resp.DatasetIDs, nil
}

// AssignUserGroup adds user to group. Operator only.
func (c *Client) AssignUserGroup(ctx context.Context, user, group string) error {
	return c.Post(ctx, userPath(user, "/groups"), types.GroupAssignmentRequest{Group: group}, nil)
}

// GetUserGroups returns the groups user belongs to.
func (c *Client) GetUserGroups(ctx context.Context, user string) ([]string, error) {
	var resp types.GroupsResponse
	if err := c.Get(ctx, userPath(user, "/groups"), &resp); err != nil {
		return nil, err
	}

	return resp.Groups, nil
}

// GetState returns the full ledger state.
func (c *Client) GetState(ctx context.Context) (types.LedgerState, error) {
	var state types.LedgerState
	err := c.Get(ctx, "/v1/state", &state)

	return state, err
}
