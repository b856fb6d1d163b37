package models

import (
	"errors"
	"fmt"
)

// ErrorType is the kind of a transaction or swap error
type ErrorType string

// Basic transaction errors
const (
	ErrNotEnoughBalance            ErrorType = "NOT_ENOUGH_BALANCE"
	ErrNotEnoughExistentialDeposit ErrorType = "NOT_ENOUGH_EXISTENTIAL_DEPOSIT"
	ErrReceiverInactive            ErrorType = "RECEIVER_NOT_ENOUGH_EXISTENTIAL_DEPOSIT"
	ErrDuplicateTransaction        ErrorType = "DUPLICATE_TRANSACTION"
	ErrUserRejectRequest           ErrorType = "USER_REJECT_REQUEST"
	ErrUnableToSign                ErrorType = "UNABLE_TO_SIGN"
	ErrUnableToSend                ErrorType = "UNABLE_TO_SEND"
	ErrSendTransactionFailed       ErrorType = "SEND_TRANSACTION_FAILED"
	ErrChainDisconnected           ErrorType = "CHAIN_DISCONNECTED"
	ErrInvalidParams               ErrorType = "INVALID_PARAMS"
	ErrUnsupported                 ErrorType = "UNSUPPORTED"
	ErrTimeout                     ErrorType = "TIMEOUT"
	ErrInternal                    ErrorType = "INTERNAL_ERROR"
)

// Swap errors
const (
	ErrQuoteTimeout         ErrorType = "QUOTE_TIMEOUT"
	ErrAssetNotSupported    ErrorType = "ASSET_NOT_SUPPORTED"
	ErrUnknown              ErrorType = "UNKNOWN"
	ErrErrorFetchingQuote   ErrorType = "ERROR_FETCHING_QUOTE"
	ErrNotEnoughLiquidity   ErrorType = "NOT_ENOUGH_LIQUIDITY"
	ErrSwapPairNotFound     ErrorType = "SWAP_PAIR_NOT_FOUND"
	ErrAmountTooLow         ErrorType = "AMOUNT_TOO_LOW"
	ErrAmountTooHigh        ErrorType = "AMOUNT_TOO_HIGH"
	ErrNotMeetMinSwap       ErrorType = "NOT_MEET_MIN_SWAP"
	ErrInvalidRecipient     ErrorType = "INVALID_RECIPIENT"
	ErrSwapNotEnoughBalance ErrorType = "SWAP_NOT_ENOUGH_BALANCE"
)

var defaultMessages = map[ErrorType]string{
	ErrNotEnoughBalance:            "Insufficient balance",
	ErrNotEnoughExistentialDeposit: "Insufficient balance to cover existential deposit",
	ErrReceiverInactive:            "The recipient account will not stay active after receiving this asset",
	ErrDuplicateTransaction:        "Another transaction is in queue. Please try again later",
	ErrUserRejectRequest:           "Rejected by user",
	ErrUnableToSign:                "Unable to sign",
	ErrUnableToSend:                "Unable to send",
	ErrSendTransactionFailed:       "Send transaction failed",
	ErrChainDisconnected:           "Network is disconnected",
	ErrInvalidParams:               "Invalid params",
	ErrUnsupported:                 "This feature is not yet available",
	ErrTimeout:                     "Transaction timeout",
	ErrInternal:                    "Internal error",
	ErrQuoteTimeout:                "Quote expired. Get a new quote to continue",
	ErrAssetNotSupported:           "This swap pair is not supported",
	ErrUnknown:                     "Undefined error. Check your Internet connection or contact support",
	ErrErrorFetchingQuote:          "No swap quote found. Adjust your amount or try again later",
	ErrNotEnoughLiquidity:          "Insufficient liquidity to complete the swap",
	ErrSwapPairNotFound:            "No route found for this swap pair",
	ErrAmountTooLow:                "Amount too low to be swapped",
	ErrAmountTooHigh:               "Amount too high to be swapped",
	ErrNotMeetMinSwap:              "Amount does not meet the minimum swap amount",
	ErrInvalidRecipient:            "Recipient address does not match the destination network",
	ErrSwapNotEnoughBalance:        "Insufficient balance to swap",
}

// DefaultMessage is the human readable message of an error type
func DefaultMessage(t ErrorType) string {
	if msg, ok := defaultMessages[t]; ok {
		return msg
	}
	return string(t)
}

// TransactionError is a validation or execution error shown to the user.
type TransactionError struct {
	ErrorType ErrorType `json:"error_type"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// NewTransactionError builds an error with the default message when msg is empty
func NewTransactionError(t ErrorType, msg string) *TransactionError {
	if msg == "" {
		msg = DefaultMessage(t)
	}
	return &TransactionError{ErrorType: t, Message: msg}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// TransactionWarning is a non blocking remark on a transaction
type TransactionWarning struct {
	WarningType string `json:"warning_type"`
	Message     string `json:"message"`
}

// SwapError is returned by quoting and process generation.
type SwapError struct {
	ErrorType ErrorType `json:"error_type"`
	Message   string    `json:"message"`
}

// NewSwapError builds a swap error with the default message when msg is empty
func NewSwapError(t ErrorType, msg string) *SwapError {
	if msg == "" {
		msg = DefaultMessage(t)
	}
	return &SwapError{ErrorType: t, Message: msg}
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// IsBenign reports whether the error says nothing more than "this provider cannot quote"
func (e *SwapError) IsBenign() bool {
	return e.ErrorType == ErrUnknown || e.ErrorType == ErrAssetNotSupported
}

// IsLiquidityError reports whether err is an amount too low or too high swap error
func IsLiquidityError(err error) bool {
	var swapErr *SwapError
	if !errors.As(err, &swapErr) {
		return false
	}
	return swapErr.ErrorType == ErrAmountTooLow || swapErr.ErrorType == ErrAmountTooHigh
}

// ErrorTypeOf extracts the taxonomy of err, INTERNAL_ERROR for foreign errors
func ErrorTypeOf(err error) ErrorType {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.ErrorType
	}
	var swapErr *SwapError
	if errors.As(err, &swapErr) {
		return swapErr.ErrorType
	}
	return ErrInternal
}
