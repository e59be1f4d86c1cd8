package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

//go:generate mockgen -destination=mocks/mock_client.go -source=client.go Client

// Client is the contract the engine consumes from the mobile-money adapter.
// Transport failures surface as GATEWAY_TRANSIENT, rejected requests as GATEWAY_TERMINAL.
type Client interface {
	InitiateDeposit(ctx context.Context, req DepositRequest) (*InitiateResponse, error)
	InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (*InitiateResponse, error)
	QueryStatus(ctx context.Context, query StatusQuery) (*Result, error)
}

// DepositRequest asks the payer's phone to approve a collection (STK push).
type DepositRequest struct {
	TransferID       uuid.UUID          `json:"transfer_id"`
	Kind             enums.TransferKind `json:"kind"`
	Phone            string             `json:"phone"`
	Amount           decimal.Decimal    `json:"amount"`
	AccountReference string             `json:"account_reference"`
	Description      string             `json:"description"`
}

// WithdrawalRequest pays out to a phone (B2C).
type WithdrawalRequest struct {
	TransferID uuid.UUID       `json:"transfer_id"`
	Phone      string          `json:"phone"`
	Amount     decimal.Decimal `json:"amount"`
	Remarks    string          `json:"remarks"`
}

// InitiateResponse carries the request id later echoed by the callback.
type InitiateResponse struct {
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
	ResponseCode   string `json:"response_code"`
	Description    string `json:"description"`
}

type StatusQuery struct {
	Kind      enums.TransferKind `json:"kind"`
	RequestID string             `json:"request_id"`
}
