package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainInfo summarises the network the wallet is connected to.
type ChainInfo struct {
	Name        string   `json:"name"`
	ChainID     int64    `json:"chainId"`
	BlockNumber uint64   `json:"blockNumber"`
	Currency    Currency `json:"currency"`
}

// TransferRequest describes a transaction signed and sent by the agent wallet.
type TransferRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Client defines the chain capabilities used by the agent toolkit and the
// wallet endpoints.
type Client interface {
	Info(ctx context.Context) (ChainInfo, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	Transfer(ctx context.Context, signer *Signer, req TransferRequest) (common.Hash, error)
	Close()
}
