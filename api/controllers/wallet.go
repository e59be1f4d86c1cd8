package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/chama-backend/api/responses"
	"github.com/angelmondragon/chama-backend/api/validators"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/transfers"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/pagination"
)

type externalTransferRequest struct {
	Amount string `json:"amount" validate:"required,money"`
	Nonce  string `json:"nonce" validate:"omitempty,max=64"`
}

type walletTransferRequest struct {
	ToMemberID string `json:"to_member_id" validate:"required,uuid"`
	Amount     string `json:"amount" validate:"required,money"`
	Note       string `json:"note" validate:"omitempty,max=140"`
}

// requestNonce prefers the body nonce and falls back to the Idempotency-Key header.
func requestNonce(r *http.Request, body string) string {
	if nonce := strings.TrimSpace(body); nonce != "" {
		return nonce
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

// WalletBalance reports the ledger balance and what can still be withdrawn.
func WalletBalance(svc WalletService, balances BalanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := balances.Balance(r.Context(), ledger.Wallet(memberID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.Available(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"member_id": memberID,
			"balance":   money(balance),
			"available": money(available),
		})
	}
}

// WalletDeposit starts an STK push into the caller's wallet.
func WalletDeposit(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload externalTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transfer, err := svc.RequestDeposit(r.Context(), transfers.DepositInput{
			MemberID: memberID,
			Amount:   amount,
			Nonce:    requestNonce(r, payload.Nonce),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, transferResponseFromModel(transfer))
	}
}

// WalletWithdraw reserves funds and queues a B2C payout to the caller's phone.
func WalletWithdraw(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload externalTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transfer, err := svc.RequestWithdrawal(r.Context(), transfers.WithdrawalInput{
			MemberID: memberID,
			Amount:   amount,
			Nonce:    requestNonce(r, payload.Nonce),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, transferResponseFromModel(transfer))
	}
}

// WalletTransfer moves money from the caller's wallet to another member.
func WalletTransfer(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload walletTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := uuid.Parse(strings.TrimSpace(payload.ToMemberID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to_member_id"))
			return
		}
		amount, err := validators.ParseAmount(payload.Amount, "amount")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transfer, err := svc.Transfer(r.Context(), transfers.TransferInput{
			FromMemberID: memberID,
			ToMemberID:   to,
			Amount:       amount,
			Note:         validators.SanitizeString(payload.Note, 140),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transferResponseFromModel(transfer))
	}
}

// TransferDetail returns one of the caller's transfers. Other members' transfers
// read as not found.
func TransferDetail(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transferID, err := validators.ParseUUIDParam(r, "transferId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transfer, err := svc.Get(r.Context(), transferID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if transfer.MemberID == nil || *transfer.MemberID != memberID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "transfer not found"))
			return
		}
		responses.WriteSuccess(w, transferResponseFromModel(transfer))
	}
}

// TransferHistory pages through the caller's transfers, newest first.
func TransferHistory(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := currentMember(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var kind enums.TransferKind
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			if kind, err = enums.ParseTransferKind(raw); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
				return
			}
		}

		page, err := svc.History(r.Context(), memberID, kind, limit, strings.TrimSpace(r.URL.Query().Get("cursor")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]*transferResponse, 0, len(page.Items))
		for i := range page.Items {
			items = append(items, transferResponseFromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  items,
			"cursor": page.Cursor,
		})
	}
}
