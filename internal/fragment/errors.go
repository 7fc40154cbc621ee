package fragment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFundsExhausted matches provider errors caused by an empty fulfillment wallet.
var ErrFundsExhausted = errors.New("fulfillment wallet funds exhausted")

// Provider error codes.
const (
	CodeGeneral           = 0
	CodeTONNetwork        = 10
	CodeKYCRequired       = 11
	CodeTONConnection     = 12
	CodeTONTelegram       = 13
	CodeRecipientNotFound = 20
	CodeUnknown           = -1
)

var codeDescriptions = map[int]string{
	CodeGeneral:           "general system error",
	CodeTONNetwork:        "TON network error",
	CodeKYCRequired:       "KYC is needed for the specified account",
	CodeTONConnection:     "TON network connection error",
	CodeTONTelegram:       "general TON/Telegram error",
	CodeRecipientNotFound: "recipient username was not found",
}

// DescribeCode returns the operator-facing meaning of a provider error code.
func DescribeCode(code int) string {
	if d, ok := codeDescriptions[code]; ok {
		return d
	}
	return "unknown error"
}

// ErrorDetail is one entry of a structured provider error.
type ErrorDetail struct {
	Code    int
	Message string
	Details string
}

// APIError is a non-2xx response from the fulfillment provider.
// Raw holds the response body for logs and must not reach end users.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
	Raw        string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("fragment api error (http %d)", e.StatusCode)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", DescribeCode(d.Code), d.Message))
	}
	return fmt.Sprintf("fragment api error (http %d): %s", e.StatusCode, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrFundsExhausted) see through provider errors.
func (e *APIError) Is(target error) bool {
	return target == ErrFundsExhausted && e.fundsExhausted()
}

func (e *APIError) fundsExhausted() bool {
	for _, d := range e.Errors {
		if isFundsExhaustedMessage(d.Message) || isFundsExhaustedMessage(d.Details) {
			return true
		}
	}
	return len(e.Errors) == 0 && isFundsExhaustedMessage(e.Raw)
}

// parseAPIError decodes the three error shapes the provider returns:
// {"errors":[{"code","error","details"}]}, {"detail": ...} and raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Raw: string(body)}

	var structured struct {
		Errors []struct {
			Code    json.RawMessage `json:"code"`
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		} `json:"errors"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &structured); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			apiErr.Errors = []ErrorDetail{{Code: CodeUnknown, Message: text}}
		}
		return apiErr
	}

	for _, e := range structured.Errors {
		apiErr.Errors = append(apiErr.Errors, ErrorDetail{
			Code:    parseCode(e.Code),
			Message: e.Error,
			Details: rawText(e.Details),
		})
	}
	if len(apiErr.Errors) == 0 && len(structured.Detail) > 0 {
		apiErr.Errors = []ErrorDetail{{Code: CodeUnknown, Message: rawText(structured.Detail)}}
	}
	if len(apiErr.Errors) == 0 {
		apiErr.Errors = []ErrorDetail{{Code: CodeUnknown, Message: strings.TrimSpace(string(body))}}
	}
	return apiErr
}

// parseCode accepts numeric and quoted codes.
func parseCode(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	code, err := strconv.Atoi(s)
	if err != nil {
		return CodeUnknown
	}
	return code
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
