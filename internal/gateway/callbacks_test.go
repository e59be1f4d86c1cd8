package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

const stkSuccess = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const stkCancelled = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

const b2cSuccess = `{
  "Result": {
    "ResultType": 0,
    "ResultCode": 0,
    "ResultDesc": "The service request is processed successfully.",
    "OriginatorConversationID": "10571-7910404-1",
    "ConversationID": "AG_20191219_00004e48cf7e3533f581",
    "TransactionID": "NLJ41HAY6Q",
    "ResultParameters": {
      "ResultParameter": [
        {"Key": "TransactionAmount", "Value": 10},
        {"Key": "TransactionReceipt", "Value": "NLJ41HAY6Q"},
        {"Key": "ReceiverPartyPublicName", "Value": "0722000000 - Safaricom PLC"},
        {"Key": "TransactionCompletedDateTime", "Value": "19.12.2019 11:45:50"},
        {"Key": "B2CUtilityAccountAvailableFunds", "Value": 10116.00}
      ]
    }
  }
}`

func TestParseSTKCallback_Success(t *testing.T) {
	loc := clock.EAT()
	res, err := ParseSTKCallback([]byte(stkSuccess), enums.TransferKindDeposit, loc)
	require.NoError(t, err)

	assert.Equal(t, enums.TransferKindDeposit, res.Kind)
	assert.Equal(t, "ws_CO_191220191020363925", res.Code)
	assert.True(t, res.Succeeded())
	assert.True(t, res.HasPayment())
	assert.Equal(t, "500.00", res.Amount.StringFixed(2))
	assert.Equal(t, "NLJ7RT61SV", res.Receipt)
	assert.Equal(t, "254708374149", res.Phone)
	assert.True(t, res.TransactionAt.Equal(time.Date(2019, 12, 19, 10, 21, 15, 0, loc)))
}

func TestParseSTKCallback_FailureHasNoPayment(t *testing.T) {
	res, err := ParseSTKCallback([]byte(stkCancelled), "", clock.EAT())
	require.NoError(t, err)

	assert.Equal(t, enums.TransferKindDeposit, res.Kind)
	assert.False(t, res.Succeeded())
	assert.False(t, res.HasPayment())
	assert.Equal(t, 1032, res.ResultCode)
}

func TestParseSTKCallback_RejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"Body":{"stkCallback":{"ResultCode":0}}}`,
		`{"Body":{"stkCallback":{"CheckoutRequestID":"x","ResultCode":"abc"}}}`,
	}
	for _, payload := range cases {
		_, err := ParseSTKCallback([]byte(payload), enums.TransferKindDeposit, clock.EAT())
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "payload %s", payload)
	}
}

func TestParseB2CResult_Success(t *testing.T) {
	loc := clock.EAT()
	res, err := ParseB2CResult([]byte(b2cSuccess), loc)
	require.NoError(t, err)

	assert.Equal(t, enums.TransferKindWithdrawal, res.Kind)
	assert.Equal(t, "10571-7910404-1", res.Code)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "10.00", res.Amount.StringFixed(2))
	assert.Equal(t, "NLJ41HAY6Q", res.Receipt)
	assert.Equal(t, "254722000000", res.Phone)
	assert.True(t, res.TransactionAt.Equal(time.Date(2019, 12, 19, 11, 45, 50, 0, loc)))
}

func TestParseB2CResult_StringResultCode(t *testing.T) {
	payload := `{"Result":{"ResultCode":"2001","ResultDesc":"The initiator information is invalid.","OriginatorConversationID":"abc"}}`
	res, err := ParseB2CResult([]byte(payload), clock.EAT())
	require.NoError(t, err)
	assert.Equal(t, 2001, res.ResultCode)
	assert.False(t, res.Succeeded())
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "254 712 345 678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "0112345678", want: "254112345678"},
		{in: "12345", wantErr: true},
		{in: "07123abc78", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
