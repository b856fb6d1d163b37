package uniswap

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
)

type orderRequest struct {
	EncodedOrder string `json:"encodedOrder"`
	Signature    string `json:"signature"`
	ChainID      int64  `json:"chainId"`
	QuoteID      string `json:"quoteId,omitempty"`
}

type orderResponse struct {
	Hash string `json:"hash"`
}

type ordersResponse struct {
	Orders []struct {
		OrderStatus string `json:"orderStatus"`
		TxHash      string `json:"txHash"`
	} `json:"orders"`
}

// orderClient submits Dutch orders to the order book of the trading API
type orderClient struct {
	client *remote.Client
}

var _ models.OrderClient = (*orderClient)(nil)

func (o *orderClient) SubmitOrder(ctx context.Context, order *models.DutchOrderPayload) (string, error) {
	var resp orderResponse
	err := o.client.PostJSON(ctx, "/order", orderRequest{
		EncodedOrder: order.EncodedOrder,
		Signature:    order.Signature,
		ChainID:      order.ChainID,
		QuoteID:      order.QuoteID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("order book returned no order hash")
	}
	return resp.Hash, nil
}

func (o *orderClient) OrderStatus(ctx context.Context, orderHash string) (*models.OrderStatus, error) {
	var resp ordersResponse
	if err := o.client.GetJSON(ctx, "/orders?orderHash="+url.QueryEscape(orderHash), &resp); err != nil {
		return nil, err
	}
	if len(resp.Orders) == 0 {
		return &models.OrderStatus{Status: models.OrderStatusOpen}, nil
	}
	return &models.OrderStatus{Status: resp.Orders[0].OrderStatus, TxHash: resp.Orders[0].TxHash}, nil
}
