package gateway

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

// Positions of the response fields. The gateway numbers fields from 1.
const (
	fieldResponseCode  = 1
	fieldSubcode       = 2
	fieldReasonCode    = 3
	fieldReasonText    = 4
	fieldApprovalCode  = 5
	fieldAVSCode       = 6
	fieldTransactionID = 7
	fieldCVVResult     = 39
	fieldCAVVResult    = 40
)

const protocolVersion = "3.1"

var retryAfterFiveMinutes = map[int]struct{}{
	19: {}, 20: {}, 21: {}, 22: {}, 23: {},
	25: {}, 26: {},
	57: {}, 58: {}, 59: {}, 60: {}, 61: {}, 62: {}, 63: {},
}

var retryImmediately = map[int]struct{}{
	120: {}, 121: {}, 122: {},
}

// RetryAfterFiveMinutes reports whether the gateway asks for a delayed resubmission.
func RetryAfterFiveMinutes(reasonCode int) bool {
	_, ok := retryAfterFiveMinutes[reasonCode]
	return ok
}

// RetryImmediately reports whether the gateway asks for an immediate resubmission.
func RetryImmediately(reasonCode int) bool {
	_, ok := retryImmediately[reasonCode]
	return ok
}

// Encode builds the URL-encoded AUTH_CAPTURE body for req.
func Encode(req *models.TransactionRequest) string {
	testRequest := "FALSE"
	if req.TestMode {
		testRequest = "TRUE"
	}

	form := url.Values{}
	form.Set("x_login", req.LoginID)
	form.Set("x_tran_key", req.TransactionKey)
	form.Set("x_version", protocolVersion)
	form.Set("x_test_request", testRequest)
	form.Set("x_delim_char", req.Delimiter)
	form.Set("x_delim_data", "TRUE")
	form.Set("x_url", "FALSE")
	form.Set("x_type", "AUTH_CAPTURE")
	form.Set("x_method", "CC")
	form.Set("x_relay_response", "FALSE")
	form.Set("x_card_num", req.CardNumber)
	form.Set("x_exp_date", req.CardExpiry)
	form.Set("x_amount", req.Amount.StringFixed(2))

	// url.Values.Encode sorts by key, which keeps the body stable across attempts.
	return form.Encode()
}

// ParseResponse splits a delimited gateway body into its named fields.
func ParseResponse(body, delimiter string) (*models.TransactionResponse, error) {
	raw := strings.TrimSpace(body)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	// Slot 0 is a placeholder so indices match the gateway's numbering.
	fields := append([]string{""}, strings.Split(raw, delimiter)...)
	field := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	code, err := strconv.Atoi(field(fieldResponseCode))
	if err != nil {
		return nil, fmt.Errorf("%w: response code %q", ErrMalformedResponse, field(fieldResponseCode))
	}

	var reason int
	if s := field(fieldReasonCode); s != "" {
		reason, err = strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: reason code %q", ErrMalformedResponse, s)
		}
	}

	return &models.TransactionResponse{
		ResponseCode:  code,
		Subcode:       field(fieldSubcode),
		ReasonCode:    reason,
		ReasonText:    field(fieldReasonText),
		ApprovalCode:  field(fieldApprovalCode),
		AVSCode:       field(fieldAVSCode),
		TransactionID: field(fieldTransactionID),
		CVVResult:     field(fieldCVVResult),
		CAVVResult:    field(fieldCAVVResult),
		Raw:           raw,
	}, nil
}
