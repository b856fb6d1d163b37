package transaction

import (
	"context"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// TonSignRequest is the confirmation payload of a TON transfer. The signer returns the signature of Cell.
type TonSignRequest struct {
	Cell     string                       `json:"cell"`
	Messages []*models.TonTransferPayload `json:"messages"`
}

// sendTon signs the wallet transfer, sends the external message and resolves it by its message hash.
// The transaction hash is only known once the message landed.
func (s *Service) sendTon(ctx context.Context, r *runner, msg *models.TonTransferPayload) error {
	api, err := s.deps.Registry.GetTonApi(r.data.Chain)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	msgs := []*models.TonTransferPayload{msg}
	cell, err := api.CreateTransferCell(ctx, r.address, msgs)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}

	res, err := s.confirm(ctx, r, chain.ConfirmTonSendTransaction, &TonSignRequest{Cell: cell, Messages: msgs})
	if err != nil {
		return err
	}
	s.updateTx(r.id, func(t *models.Transaction) { t.Signature = res.Payload })
	s.emit(r, Event{Type: EventSigned})

	boc, msgHash, err := api.CreateExternalMessage(ctx, r.address, cell, res.Payload)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, err.Error())
	}
	if err := api.SendBoc(ctx, boc); err != nil {
		return models.NewTransactionError(models.ErrUnableToSend, err.Error())
	}
	s.emit(r, Event{Type: EventSend})
	log.Debug().Str("transaction", r.id).Str("message", msgHash).Msg("External message sent")

	return s.poll(ctx, func() (bool, error) {
		st, err := api.GetStatusByMessageHash(ctx, msgHash)
		if err != nil {
			log.Debug().Err(err).Str("transaction", r.id).Msg("Message lookup failed")
			return false, nil
		}
		if !st.Found {
			return false, nil
		}
		s.emit(r, Event{Type: EventExtrinsicHash, ExtrinsicHash: st.TxHash})
		if !st.Success {
			return false, models.NewTransactionError(models.ErrSendTransactionFailed, "transaction was not applied")
		}
		s.emit(r, Event{Type: EventSuccess})
		return true, nil
	})
}
