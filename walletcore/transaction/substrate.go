package transaction

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// SubstrateSignRequest is the confirmation payload of an extrinsic. The signer returns the signature of
// Payload.Raw.
type SubstrateSignRequest struct {
	Payload *chain.SignerPayload `json:"payload"`
	Fee     *models.FeeAmount    `json:"fee,omitempty"`
}

func (s *Service) sendSubstrate(ctx context.Context, r *runner, ext *models.SubstrateExtrinsic) error {
	api, err := s.deps.Registry.GetSubstrateApi(r.data.Chain)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	info, err := s.deps.Registry.GetChainInfoByKey(r.data.Chain)
	if err != nil {
		return invalid("%s", err.Error())
	}

	e := *ext
	fee, err := s.substrateFee(ctx, api, info, r, &e)
	if err != nil {
		return err
	}

	payload, err := api.CreateSignerPayload(ctx, &e, r.address)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	res, err := s.confirm(ctx, r, chain.ConfirmSubmitApi, &SubstrateSignRequest{Payload: payload, Fee: fee})
	if err != nil {
		return err
	}
	s.updateTx(r.id, func(t *models.Transaction) { t.Signature = res.Payload })
	s.emit(r, Event{Type: EventSigned})

	statuses, err := api.SubmitAndWatch(ctx, payload, res.Payload)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSend, err.Error())
	}
	s.emit(r, Event{Type: EventSend})

	for {
		var st chain.ExtrinsicStatus
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok = <-statuses:
		}
		if !ok {
			return models.NewTransactionError(models.ErrSendTransactionFailed, "extrinsic watch ended before finality")
		}
		if st.ExtrinsicHash != "" {
			s.emit(r, Event{Type: EventExtrinsicHash, ExtrinsicHash: st.ExtrinsicHash})
		}

		switch st.Kind {
		case chain.ExtrinsicDropped, chain.ExtrinsicInvalid:
			return models.NewTransactionError(models.ErrSendTransactionFailed, fmt.Sprintf("extrinsic %s", st.Kind))
		case chain.ExtrinsicInBlock:
			s.emit(r, Event{Type: EventInBlock})
		}

		if failed, reason := dispatchFailure(st.Events); failed {
			return models.NewTransactionError(models.ErrSendTransactionFailed, reason)
		}
		if st.Kind == chain.ExtrinsicFinalized || hasEvent(st.Events, "ExtrinsicSuccess") {
			s.emit(r, Event{Type: EventSuccess})
			return nil
		}
	}
}

// substrateFee prices the extrinsic. A fee asset is only kept on chains that accept one.
func (s *Service) substrateFee(ctx context.Context, api chain.SubstrateApi, info *models.ChainInfo, r *runner, e *models.SubstrateExtrinsic) (*models.FeeAmount, error) {
	if e.FeeAssetID == "" {
		return r.data.EstimateFee, nil
	}
	if !info.SupportsAssetFee {
		log.Warn().Str("chain", info.Slug).Str("asset", e.FeeAssetID).Msg("Chain does not take fees in other assets, paying in native token")
		e.FeeAssetID = ""
		return r.data.EstimateFee, nil
	}

	native, err := api.PaymentInfo(ctx, e, r.address)
	if err != nil {
		return nil, models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	converted, err := api.ConvertFeeToAsset(ctx, native, e.FeeAssetID)
	if err != nil {
		return nil, models.NewTransactionError(models.ErrNotEnoughBalance, fmt.Sprintf("cannot pay the fee in %s: %s", e.FeeAssetID, err))
	}
	fee := &models.FeeAmount{Amount: decimalFromBig(converted), TokenSlug: e.FeeAssetID}
	s.updateTx(r.id, func(t *models.Transaction) { t.EstimateFee = fee })
	return fee, nil
}

func decimalFromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

func hasEvent(events []chain.SystemEvent, method string) bool {
	for _, ev := range events {
		if ev.Pallet == "system" && ev.Method == method {
			return true
		}
	}
	return false
}

func dispatchFailure(events []chain.SystemEvent) (bool, string) {
	for _, ev := range events {
		if ev.Pallet == "system" && ev.Method == "ExtrinsicFailed" {
			if ev.DispatchError != "" {
				return true, ev.DispatchError
			}
			return true, "extrinsic failed"
		}
	}
	return false, ""
}
