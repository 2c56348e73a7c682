package api

import (
	"net/http"

	"github.com/helix-tools/ledger-go/types"
)

func (h *Handler) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

func (h *Handler) listDataset(w http.ResponseWriter, r *http.Request) {
	var req types.ListDatasetRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := h.ledger.ListDataset(r.Context(), caller(r), req)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.DatasetIDResponse{DatasetID: id})
}

func (h *Handler) batchListDatasets(w http.ResponseWriter, r *http.Request) {
	var req types.BatchListRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	ids, err := h.ledger.BatchListDatasets(r.Context(), caller(r), req)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.DatasetIDsResponse{DatasetIDs: ids, Count: len(ids)})
}

func (h *Handler) getDataset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	details, err := h.ledger.DatasetDetails(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.PriceRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.UpdateDatasetPrice(r.Context(), caller(r), id, req.Price); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateDataset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.DeactivateDataset(r.Context(), caller(r), id); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.AddVersionRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	version, err := h.ledger.AddDatasetVersion(r.Context(), caller(r), id, req)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.AddVersionResponse{Version: version})
}

func (h *Handler) getVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	versions, err := h.ledger.DatasetVersions(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.VersionsResponse{Versions: versions, Count: len(versions)})
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.CategoryUpdateRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.UpdateDatasetCategory(r.Context(), caller(r), id, req.CategoryID); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateTags(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.TagsRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.UpdateDatasetTags(r.Context(), caller(r), id, req.Tags); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getTags(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	tags, err := h.ledger.DatasetTags(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TagsResponse{Tags: tags})
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.PaymentRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	receipt, err := h.ledger.PurchaseDataset(r.Context(), caller(r), id, req.Payment)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) setSubscriptionPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.PriceRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.SetSubscriptionPrice(r.Context(), caller(r), id, req.Price); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.SubscribeRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	resp, err := h.ledger.Subscribe(r.Context(), caller(r), id, req.Months, req.Payment)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.CancelSubscription(r.Context(), caller(r), id); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	user := userParam(r)

	sub, current := h.ledger.SubscriptionStatus(id, user)
	resp := types.CheckSubscriptionResponse{HasSubscription: current}
	if current {
		resp.EndTime = &sub.EndTime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.AccessRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.SetDatasetAccess(r.Context(), caller(r), id, req.IsPublic); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAccessControl(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	ac, err := h.ledger.AccessControl(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ac)
}

func (h *Handler) hasAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.HasAccessResponse{
		HasAccess: h.ledger.HasAccess(id, userParam(r)),
	})
}

func (h *Handler) grantAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.GrantAccess(r.Context(), caller(r), id, userParam(r)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeAccess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.RevokeAccess(r.Context(), caller(r), id, userParam(r)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setAllowedGroups(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.GroupsRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.SetAllowedGroups(r.Context(), caller(r), id, req.Groups); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req types.ReviewRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.ReviewDataset(r.Context(), caller(r), id, req.Rating, req.Comment); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	reviews, err := h.ledger.DatasetReviews(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	rating, err := h.ledger.DatasetRating(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ReviewsResponse{Rating: rating, Reviews: reviews, Count: len(reviews)})
}

func (h *Handler) addCategory(w http.ResponseWriter, r *http.Request) {
	var req types.CreateCategoryRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := h.ledger.AddCategory(r.Context(), caller(r), req.Name, req.Description)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CategoryIDResponse{CategoryID: id})
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	category, err := h.ledger.Category(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *Handler) deactivateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.DeactivateCategory(r.Context(), caller(r), id); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getUserDatasets(w http.ResponseWriter, r *http.Request) {
	ids := h.ledger.UserDatasets(userParam(r))
	writeJSON(w, http.StatusOK, types.DatasetIDsResponse{DatasetIDs: ids, Count: len(ids)})
}

func (h *Handler) getUserPurchases(w http.ResponseWriter, r *http.Request) {
	ids := h.ledger.UserPurchases(userParam(r))
	writeJSON(w, http.StatusOK, types.DatasetIDsResponse{DatasetIDs: ids, Count: len(ids)})
}

func (h *Handler) getUserGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.GroupsResponse{Groups: h.ledger.UserGroups(userParam(r))})
}

func (h *Handler) assignUserGroup(w http.ResponseWriter, r *http.Request) {
	var req types.GroupAssignmentRequest
	if err := decode(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.ledger.AssignUserGroup(r.Context(), caller(r), userParam(r), req.Group); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
