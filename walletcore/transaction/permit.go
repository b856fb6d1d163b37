package transaction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// PermitSignRequest is the confirmation payload of an EIP-712 signature
type PermitSignRequest struct {
	TypedData apitypes.TypedData `json:"typed_data"`
	Hash      string             `json:"hash"`
}

// signPermit collects an EIP-712 signature. Nothing is broadcast, the signature stands in for the
// extrinsic hash so the next step of the process can pick it up. The timeout guard runs from the
// signature request since there is no send.
func (s *Service) signPermit(ctx context.Context, r *runner, p *models.PermitPayload) error {
	if !common.IsHexAddress(p.Owner) {
		return invalid("invalid permit owner %q", p.Owner)
	}
	hash, _, err := apitypes.TypedDataAndHash(p.TypedData)
	if err != nil {
		return invalid("invalid typed data: %s", err)
	}

	r.mu.Lock()
	s.armTimeout(r)
	r.mu.Unlock()
	res, err := s.confirm(ctx, r, chain.ConfirmEvmSignature, &PermitSignRequest{TypedData: p.TypedData, Hash: hexutil.Encode(hash)})
	if err != nil {
		return err
	}
	raw, err := hexutil.Decode(res.Payload)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, "signature is not hex encoded")
	}
	sig, err := normalizeSignature(raw)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, err.Error())
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, err.Error())
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != common.HexToAddress(p.Owner) {
		log.Warn().Str("transaction", r.id).Str("owner", p.Owner).Str("recovered", signer.Hex()).Msg("Permit signed by another account")
		return models.NewTransactionError(models.ErrUnableToSign, "signature does not belong to the permit owner")
	}

	s.updateTx(r.id, func(t *models.Transaction) { t.Signature = res.Payload })
	s.emit(r, Event{Type: EventSigned})
	s.emit(r, Event{Type: EventExtrinsicHash, ExtrinsicHash: res.Payload})
	s.emit(r, Event{Type: EventSuccess})
	return nil
}

// sendDutchOrder hands a signed order to the order book and polls it until a filler settles it.
// An order still open after MaxPolls checks fails with a timeout error.
func (s *Service) sendDutchOrder(ctx context.Context, r *runner, o *models.DutchOrderPayload) error {
	if o.Client == nil {
		return models.NewTransactionError(models.ErrUnsupported, "no order book for this chain")
	}
	if o.Signature == "" {
		return invalid("order is not signed")
	}
	s.emit(r, Event{Type: EventSigned})

	orderHash, err := o.Client.SubmitOrder(ctx, o)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSend, err.Error())
	}
	s.emit(r, Event{Type: EventSend})
	s.emit(r, Event{Type: EventExtrinsicHash, ExtrinsicHash: orderHash})

	maxPolls := o.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultOrderPolls
	}
	polls := 0
	return s.poll(ctx, func() (bool, error) {
		polls++
		st, err := o.Client.OrderStatus(ctx, orderHash)
		if err != nil {
			log.Debug().Err(err).Str("transaction", r.id).Str("order", orderHash).Msg("Order status lookup failed")
		} else {
			switch st.Status {
			case models.OrderStatusFilled:
				if st.TxHash != "" {
					s.updateTx(r.id, func(t *models.Transaction) { t.Data = fillData(t.Data, st.TxHash) })
				}
				s.emit(r, Event{Type: EventSuccess})
				return true, nil
			case models.OrderStatusExpired, models.OrderStatusCancelled, models.OrderStatusError:
				return false, models.NewTransactionError(models.ErrSendTransactionFailed, fmt.Sprintf("order %s", st.Status))
			}
		}
		if polls >= maxPolls {
			return false, models.NewTransactionError(models.ErrTimeout, fmt.Sprintf("order still open after %d checks", polls))
		}
		return false, nil
	})
}

// fillData records the settlement transaction of a filled order
func fillData(data any, txHash string) any {
	out := map[string]any{"fill_tx_hash": txHash}
	if m, ok := data.(map[string]any); ok {
		for k, v := range m {
			if k != "fill_tx_hash" {
				out[k] = v
			}
		}
	} else if data != nil {
		out["request"] = data
	}
	return out
}
