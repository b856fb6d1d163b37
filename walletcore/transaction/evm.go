package transaction

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// EvmSignRequest is the confirmation payload of an EVM transaction. Local signers return a 65 byte
// signature over Hash, injected signers broadcast the transaction and return its hash.
type EvmSignRequest struct {
	Transaction *models.EvmTransactionConfig `json:"transaction"`
	Hash        common.Hash                  `json:"hash"`
}

func (s *Service) sendEvm(ctx context.Context, r *runner, cfg *models.EvmTransactionConfig) error {
	api, err := s.deps.Registry.GetEvmApi(r.data.Chain)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	c := *cfg
	if err := s.resolveEvm(ctx, r.data.Chain, api, &c); err != nil {
		return err
	}
	tx, signer := buildEvmTx(&c)
	unsigned := signer.Hash(tx)

	res, err := s.confirm(ctx, r, chain.ConfirmEvmSendTransaction, &EvmSignRequest{Transaction: &c, Hash: unsigned})
	if err != nil {
		return err
	}

	if s.injected(r.address) {
		hash, err := hexutil.Decode(res.Payload)
		if err != nil || len(hash) != common.HashLength {
			return models.NewTransactionError(models.ErrUnableToSend, "signer returned an invalid transaction hash")
		}
		s.emit(r, Event{Type: EventSigned})
		s.emit(r, Event{Type: EventSend})
		s.emit(r, Event{Type: EventExtrinsicHash, ExtrinsicHash: res.Payload})
		return s.waitReceipt(ctx, r, api, common.BytesToHash(hash))
	}

	sig, err := hexutil.Decode(res.Payload)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, "signature is not hex encoded")
	}
	signed, err := withSignature(tx, signer, sig)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, err.Error())
	}
	sender, err := types.Sender(signer, signed)
	if err != nil {
		return models.NewTransactionError(models.ErrUnableToSign, err.Error())
	}
	if sender != common.HexToAddress(c.From) {
		log.Warn().Str("transaction", r.id).Str("expected", c.From).Str("recovered", sender.Hex()).Msg("Signature does not match the sender")
		return models.NewTransactionError(models.ErrUnableToSign, "signature does not belong to the sender")
	}
	s.updateTx(r.id, func(t *models.Transaction) { t.Signature = res.Payload })
	s.emit(r, Event{Type: EventSigned})

	if err := api.SendTransaction(ctx, signed); err != nil {
		return models.NewTransactionError(models.ErrUnableToSend, err.Error())
	}
	s.emit(r, Event{Type: EventSend})
	s.emit(r, Event{Type: EventExtrinsicHash, ExtrinsicHash: signed.Hash().Hex()})
	return s.waitReceipt(ctx, r, api, signed.Hash())
}

// resolveEvm fills the chain id, nonce, gas limit and fees the caller left unset
func (s *Service) resolveEvm(ctx context.Context, chainSlug string, api chain.EvmApi, c *models.EvmTransactionConfig) error {
	if !common.IsHexAddress(c.From) {
		return invalid("invalid sender %q", c.From)
	}
	if c.To != "" && !common.IsHexAddress(c.To) {
		return invalid("invalid recipient %q", c.To)
	}
	from := common.HexToAddress(c.From)

	if c.ChainID == 0 {
		id, err := api.ChainID(ctx)
		if err != nil {
			return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
		}
		c.ChainID = id.Int64()
	}
	if c.Nonce == nil {
		nonce, err := api.PendingNonceAt(ctx, from)
		if err != nil {
			return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
		}
		c.Nonce = &nonce
	}
	if c.Gas == 0 {
		msg := ethereum.CallMsg{From: from, Value: c.Value, Data: c.Data}
		if c.To != "" {
			to := common.HexToAddress(c.To)
			msg.To = &to
		}
		gas, err := api.EstimateGas(ctx, msg)
		if err != nil {
			return models.NewTransactionError(models.ErrSendTransactionFailed, fmt.Sprintf("estimate gas: %s", err))
		}
		c.Gas = gas
	}
	if c.GasPrice != nil || c.MaxFeePerGas != nil {
		return nil
	}

	if s.deps.Fees != nil {
		info, err := s.deps.Fees.SubscribeChainFee(ctx, "transaction", chainSlug, models.ChainTypeEvm, nil)
		if err == nil {
			if info.IsLegacy() {
				c.GasPrice = info.GasPrice
				return nil
			}
			if tier, ok := info.EvmOptions[models.FeeAverage]; ok {
				c.MaxFeePerGas = tier.MaxFeePerGas
				c.MaxPriorityFeePerGas = tier.MaxPriorityFeePerGas
				return nil
			}
		}
		log.Warn().Err(err).Str("chain", chainSlug).Msg("No fee quote, asking the node")
	}

	head, err := api.HeaderByNumber(ctx, nil)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	if head.BaseFee == nil {
		price, err := api.SuggestGasPrice(ctx)
		if err != nil {
			return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
		}
		c.GasPrice = price
		return nil
	}
	tip, err := api.SuggestGasTipCap(ctx)
	if err != nil {
		return models.NewTransactionError(models.ErrChainDisconnected, err.Error())
	}
	c.MaxPriorityFeePerGas = tip
	c.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return nil
}

// buildEvmTx builds the unsigned transaction, EIP-1559 when a fee cap is set
func buildEvmTx(c *models.EvmTransactionConfig) (*types.Transaction, types.Signer) {
	chainID := big.NewInt(c.ChainID)
	var to *common.Address
	if c.To != "" {
		addr := common.HexToAddress(c.To)
		to = &addr
	}
	value := c.Value
	if value == nil {
		value = new(big.Int)
	}

	var tx *types.Transaction
	if c.MaxFeePerGas != nil {
		tip := c.MaxPriorityFeePerGas
		if tip == nil {
			tip = new(big.Int)
		}
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     *c.Nonce,
			GasTipCap: tip,
			GasFeeCap: c.MaxFeePerGas,
			Gas:       c.Gas,
			To:        to,
			Value:     value,
			Data:      c.Data,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    *c.Nonce,
			GasPrice: c.GasPrice,
			Gas:      c.Gas,
			To:       to,
			Value:    value,
			Data:     c.Data,
		})
	}
	return tx, types.LatestSignerForChainID(chainID)
}

// normalizeSignature returns a copy of a 65 byte signature with a 0/1 recovery id
func normalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature has %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	out := make([]byte, len(sig))
	copy(out, sig)
	if out[crypto.RecoveryIDOffset] >= 27 {
		out[crypto.RecoveryIDOffset] -= 27
	}
	return out, nil
}

func withSignature(tx *types.Transaction, signer types.Signer, sig []byte) (*types.Transaction, error) {
	sig, err := normalizeSignature(sig)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(signer, sig)
}

func (s *Service) waitReceipt(ctx context.Context, r *runner, api chain.EvmApi, hash common.Hash) error {
	return s.poll(ctx, func() (bool, error) {
		receipt, err := api.TransactionReceipt(ctx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				log.Debug().Err(err).Str("transaction", r.id).Msg("Receipt lookup failed")
			}
			return false, nil
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return false, models.NewTransactionError(models.ErrSendTransactionFailed, fmt.Sprintf("transaction %s reverted", hash.Hex()))
		}
		s.emit(r, Event{Type: EventSuccess})
		return true, nil
	})
}
