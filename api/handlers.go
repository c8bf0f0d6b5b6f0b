// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/blinklabs-io/veilpost/journal"
	"github.com/blinklabs-io/veilpost/ledger"
)

const apiVersion = "0.1.0"

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes a standard-format error response.
func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeLedgerError maps ledger errors onto HTTP status codes.
func (a *Api) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrNullifierAlreadyUsed):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrIncorrectPayment):
		writeError(
			w,
			http.StatusPaymentRequired,
			"Payment Required",
			err.Error(),
		)
	case errors.Is(err, ledger.ErrOrgNotFound),
		errors.Is(err, ledger.ErrNotRegistered):
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ledger.ErrInvalidPrincipal):
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ledger.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		a.logger.Error("ledger operation failed", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"ledger operation failed",
		)
	}
}

// decodeRequest decodes a JSON request body with a size limit.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	// Limit request bodies to 1 MiB; proof payloads are well under this
	const maxBodySize = 1 << 20
	body := io.LimitReader(r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid request body",
		)
		return false
	}
	return true
}

// handleRoot handles GET / and returns API metadata.
func (a *Api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		URL:     "https://github.com/blinklabs-io/veilpost",
		Version: apiVersion,
	})
}

// handleHealth handles GET /health.
func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleRegister handles POST /api/v1/organizations. The caller principal
// comes from the bearer token.
func (a *Api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	caller := requestPrincipal(r)
	if err := a.ledger.Register(caller, req.MetadataRef); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OrganizationResponse{
		Principal:   caller,
		MetadataRef: req.MetadataRef,
	})
}

// handleOrganization handles GET /api/v1/organizations/{id}.
func (a *Api) handleOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := a.ledger.Organization(ledger.Principal(r.PathValue("id")))
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	if !org.Exists {
		writeError(
			w,
			http.StatusNotFound,
			"Not Found",
			"organization not registered",
		)
		return
	}
	writeJSON(w, http.StatusOK, OrganizationResponse{
		Principal:       org.Principal,
		MetadataRef:     org.MetadataRef,
		MembershipRoot:  org.MembershipRoot,
		SubscriptionEnd: org.SubscriptionEnd,
		Verified:        org.Verified,
	})
}

// handleSubscriptionStatus handles
// GET /api/v1/organizations/{id}/subscription. Unknown organizations are
// reported as inactive rather than missing.
func (a *Api) handleSubscriptionStatus(
	w http.ResponseWriter,
	r *http.Request,
) {
	id := ledger.Principal(r.PathValue("id"))
	active, err := a.ledger.HasActiveSubscription(id)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	org, err := a.ledger.Organization(id)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubscriptionStatusResponse{
		Active:          active,
		SubscriptionEnd: org.SubscriptionEnd,
	})
}

// handlePurchase handles POST /api/v1/subscription/purchase.
func (a *Api) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	newEnd, err := a.ledger.PurchaseSubscription(
		requestPrincipal(r),
		req.Payment,
	)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PurchaseResponse{
		SubscriptionEnd: newEnd,
	})
}

// handleRootUpdate handles PUT /api/v1/organizations/root (the caller's
// own membership root).
func (a *Api) handleRootUpdate(w http.ResponseWriter, r *http.Request) {
	var req RootUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.UpdateMerkleRoot(
		requestPrincipal(r),
		req.NewRoot,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRootUpdateForOrg handles PUT /api/v1/organizations/{id}/root
// (administrator override).
func (a *Api) handleRootUpdateForOrg(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req RootUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.UpdateMerkleRootForOrg(
		requestPrincipal(r),
		ledger.Principal(r.PathValue("id")),
		req.NewRoot,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetVerified handles PUT /api/v1/organizations/{id}/verified.
func (a *Api) handleSetVerified(w http.ResponseWriter, r *http.Request) {
	var req VerifiedUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.SetVerified(
		requestPrincipal(r),
		ledger.Principal(r.PathValue("id")),
		req.Verified,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitPost handles POST /api/v1/posts. Submission is anonymous;
// the member proves membership in the proof payload, not with a token.
func (a *Api) handleSubmitPost(w http.ResponseWriter, r *http.Request) {
	var req SubmitPostRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.SubmitPost(
		req.Org,
		req.PostCommitment,
		req.NullifierHash,
		req.Proof,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleConfirmPost handles POST /api/v1/posts/confirm.
func (a *Api) handleConfirmPost(w http.ResponseWriter, r *http.Request) {
	var req PostDecisionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.ConfirmPost(
		requestPrincipal(r),
		req.Org,
		req.PostCommitment,
		req.NullifierHash,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRejectPost handles POST /api/v1/posts/reject.
func (a *Api) handleRejectPost(w http.ResponseWriter, r *http.Request) {
	var req PostDecisionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.RejectPost(
		requestPrincipal(r),
		req.Org,
		req.PostCommitment,
		req.NullifierHash,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNullifier handles
// GET /api/v1/organizations/{id}/nullifiers/{hash}.
func (a *Api) handleNullifier(w http.ResponseWriter, r *http.Request) {
	hash, err := ledger.NewDigestFromHex(r.PathValue("hash"))
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			"invalid nullifier hash",
		)
		return
	}
	used, err := a.ledger.IsNullifierUsed(
		ledger.Principal(r.PathValue("id")),
		hash,
	)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NullifierResponse{Used: used})
}

// handleParams handles GET /api/v1/params.
func (a *Api) handleParams(w http.ResponseWriter, _ *http.Request) {
	admin, err := a.ledger.Admin()
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	price, err := a.ledger.SubscriptionPrice()
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	duration, err := a.ledger.SubscriptionDuration()
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ParamsResponse{
		Admin:                admin,
		SubscriptionPrice:    price,
		SubscriptionDuration: duration,
	})
}

// handleUpdatePrice handles PUT /api/v1/params/price.
func (a *Api) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.UpdateSubscriptionPrice(
		requestPrincipal(r),
		req.Price,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateDuration handles PUT /api/v1/params/duration.
func (a *Api) handleUpdateDuration(w http.ResponseWriter, r *http.Request) {
	var req DurationUpdateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.UpdateSubscriptionDuration(
		requestPrincipal(r),
		req.Duration,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWithdraw handles POST /api/v1/admin/withdraw.
func (a *Api) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := a.ledger.WithdrawFunds(requestPrincipal(r))
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{Amount: amount})
}

// handleTransferAdmin handles POST /api/v1/admin/transfer.
func (a *Api) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req TransferAdminRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := a.ledger.TransferAdministration(
		requestPrincipal(r),
		req.NewAdmin,
	); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJournal handles GET /api/v1/journal and pages through the
// notification journal.
func (a *Api) handleJournal(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePagination(r)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"Bad Request",
			err.Error(),
		)
		return
	}
	jnl := a.ledger.Journal()
	head, err := jnl.Head()
	if err != nil {
		a.logger.Error("failed to read journal head", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"failed to read journal",
		)
		return
	}
	entries, err := pageJournal(jnl, head, params)
	if err != nil {
		a.logger.Error("failed to read journal entries", "error", err)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"failed to read journal",
		)
		return
	}
	if head > uint64(maxJournalTotal) {
		head = uint64(maxJournalTotal)
	}
	SetPaginationHeaders(w, int(head), params)
	writeJSON(w, http.StatusOK, entries)
}

// maxJournalTotal caps the pagination total header to avoid int overflow
// on 32-bit platforms.
const maxJournalTotal = int(^uint(0) >> 1)

// pageJournal selects one page of journal entries. Sequence numbers start
// at 1; descending order walks back from the head.
func pageJournal(
	jnl *journal.Journal,
	head uint64,
	params PaginationParams,
) ([]journal.Entry, error) {
	count := uint64(params.Count) //nolint:gosec // clamped positive
	page := uint64(params.Page)   //nolint:gosec // clamped positive
	if params.Order == PaginationOrderDesc {
		// Last entry of the requested page counting back from head
		endSeq := head - min(head, (page-1)*count)
		if endSeq == 0 {
			return []journal.Entry{}, nil
		}
		fromSeq := uint64(1)
		if endSeq > count {
			fromSeq = endSeq - count + 1
		}
		entries, err := jnl.Entries(fromSeq, int(endSeq-fromSeq+1))
		if err != nil {
			return nil, err
		}
		// Reverse in place
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		return entries, nil
	}
	fromSeq := (page-1)*count + 1
	if fromSeq > head {
		return []journal.Entry{}, nil
	}
	entries, err := jnl.Entries(fromSeq, params.Count)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return entries, nil
}
