package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

const (
	stkTimestampLayout = "20060102150405"
	b2cTimestampLayout = "02.01.2006 15:04:05"
)

// rawValue keeps gateway values that arrive as either JSON strings or numbers.
type rawValue string

func (v *rawValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*v = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = rawValue(s)
		return nil
	}
	*v = rawValue(trimmed)
	return nil
}

func (v rawValue) String() string { return strings.TrimSpace(string(v)) }

func (v rawValue) Int() (int, error) {
	return strconv.Atoi(v.String())
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string   `json:"MerchantRequestID"`
			CheckoutRequestID string   `json:"CheckoutRequestID"`
			ResultCode        rawValue `json:"ResultCode"`
			ResultDesc        string   `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string   `json:"Name"`
					Value rawValue `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseSTKCallback turns an STK push callback into a deposit Result.
// kind lets registration fee collections reuse the same payload shape.
func ParseSTKCallback(payload []byte, kind enums.TransferKind, loc *time.Location) (Result, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stk callback payload")
	}
	cb := env.Body.StkCallback
	if strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "stk callback missing CheckoutRequestID")
	}
	code, err := cb.ResultCode.Int()
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stk callback ResultCode is not numeric")
	}
	if kind == "" {
		kind = enums.TransferKindDeposit
	}

	res := Result{
		Kind:           kind,
		Code:           strings.TrimSpace(cb.CheckoutRequestID),
		ConversationID: strings.TrimSpace(cb.MerchantRequestID),
		ResultCode:     code,
		ResultDesc:     cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return res, nil
	}
	for _, item := range cb.CallbackMetadata.Item {
		value := item.Value.String()
		switch item.Name {
		case "Amount":
			if res.Amount, err = parseAmount(value); err != nil {
				return Result{}, err
			}
		case "MpesaReceiptNumber":
			res.Receipt = value
		case "TransactionDate":
			if res.TransactionAt, err = parseTimestamp(stkTimestampLayout, value, loc); err != nil {
				return Result{}, err
			}
		case "PhoneNumber":
			if res.Phone, err = NormalizePhone(value); err != nil {
				return Result{}, err
			}
		}
	}
	return res, nil
}

type b2cResultEnvelope struct {
	Result struct {
		ResultType               rawValue `json:"ResultType"`
		ResultCode               rawValue `json:"ResultCode"`
		ResultDesc               string   `json:"ResultDesc"`
		OriginatorConversationID string   `json:"OriginatorConversationID"`
		ConversationID           string   `json:"ConversationID"`
		TransactionID            string   `json:"TransactionID"`
		ResultParameters         *struct {
			ResultParameter []struct {
				Key   string   `json:"Key"`
				Value rawValue `json:"Value"`
			} `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

// ParseB2CResult turns a B2C result or timeout notification into a withdrawal Result.
func ParseB2CResult(payload []byte, loc *time.Location) (Result, error) {
	var env b2cResultEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid b2c result payload")
	}
	r := env.Result
	if strings.TrimSpace(r.OriginatorConversationID) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "b2c result missing OriginatorConversationID")
	}
	code, err := r.ResultCode.Int()
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "b2c ResultCode is not numeric")
	}

	res := Result{
		Kind:           enums.TransferKindWithdrawal,
		Code:           strings.TrimSpace(r.OriginatorConversationID),
		ConversationID: strings.TrimSpace(r.ConversationID),
		ResultCode:     code,
		ResultDesc:     r.ResultDesc,
		Receipt:        strings.TrimSpace(r.TransactionID),
	}
	if r.ResultParameters == nil {
		return res, nil
	}
	for _, param := range r.ResultParameters.ResultParameter {
		value := param.Value.String()
		switch param.Key {
		case "TransactionAmount":
			if res.Amount, err = parseAmount(value); err != nil {
				return Result{}, err
			}
		case "TransactionReceipt":
			res.Receipt = value
		case "ReceiverPartyPublicName":
			phone, _, _ := strings.Cut(value, " - ")
			if res.Phone, err = NormalizePhone(phone); err != nil {
				return Result{}, err
			}
		case "TransactionCompletedDateTime":
			if res.TransactionAt, err = parseTimestamp(b2cTimestampLayout, value, loc); err != nil {
				return Result{}, err
			}
		}
	}
	return res, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid amount %q", value))
	}
	return amount.Round(2), nil
}

func parseTimestamp(layout, value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	at, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid transaction timestamp %q", value))
	}
	return at, nil
}
