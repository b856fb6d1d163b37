package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/confirmation"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/transaction"
)

// errorTypeHeader carries the domain error type next to the connect code
const errorTypeHeader = "Wallet-Error-Type"

var errorCodes = map[models.ErrorType]connect.Code{
	models.ErrInvalidParams:               connect.CodeInvalidArgument,
	models.ErrInvalidRecipient:            connect.CodeInvalidArgument,
	models.ErrDuplicateTransaction:        connect.CodeAlreadyExists,
	models.ErrSwapPairNotFound:            connect.CodeNotFound,
	models.ErrAssetNotSupported:           connect.CodeNotFound,
	models.ErrQuoteTimeout:                connect.CodeFailedPrecondition,
	models.ErrUnsupported:                 connect.CodeFailedPrecondition,
	models.ErrNotEnoughBalance:            connect.CodeFailedPrecondition,
	models.ErrNotEnoughExistentialDeposit: connect.CodeFailedPrecondition,
	models.ErrReceiverInactive:            connect.CodeFailedPrecondition,
	models.ErrSwapNotEnoughBalance:        connect.CodeFailedPrecondition,
	models.ErrNotEnoughLiquidity:          connect.CodeFailedPrecondition,
	models.ErrAmountTooLow:                connect.CodeFailedPrecondition,
	models.ErrAmountTooHigh:               connect.CodeFailedPrecondition,
	models.ErrNotMeetMinSwap:              connect.CodeFailedPrecondition,
	models.ErrUserRejectRequest:           connect.CodeAborted,
	models.ErrChainDisconnected:           connect.CodeUnavailable,
	models.ErrErrorFetchingQuote:          connect.CodeUnavailable,
	models.ErrUnknown:                     connect.CodeUnavailable,
	models.ErrTimeout:                     connect.CodeDeadlineExceeded,
}

// toConnectError maps service errors to connect codes. Domain errors keep their type in the
// errorTypeHeader metadata.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	var errType models.ErrorType
	var txErr *models.TransactionError
	var swapErr *models.SwapError
	switch {
	case errors.As(err, &txErr):
		errType = txErr.ErrorType
	case errors.As(err, &swapErr):
		errType = swapErr.ErrorType
	}
	if errType != "" {
		code, ok := errorCodes[errType]
		if !ok {
			code = connect.CodeInternal
		}
		out := connect.NewError(code, err)
		out.Meta().Set(errorTypeHeader, string(errType))
		return out
	}

	switch {
	case errors.Is(err, transaction.ErrTransactionNotFound),
		errors.Is(err, transaction.ErrProcessNotFound),
		errors.Is(err, confirmation.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, swap.ErrNotStarted), errors.Is(err, transaction.ErrNotStarted):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, swap.ErrUnknownProvider):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
