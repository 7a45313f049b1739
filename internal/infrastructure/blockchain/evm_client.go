package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	domainerrors "settle-gate.backend/internal/domain/errors"
)

// transferEventSig is the topic0 of the ERC-20 Transfer(address,address,uint256) event.
var transferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// transferSelector is the 4-byte selector of transfer(address,uint256).
var transferSelector = common.Hex2Bytes("a9059cbb")

var dialEVMClient = ethclient.Dial

// TransferEvent is a decoded ERC-20 Transfer log. Amount is already scaled
// to token units using the configured token decimals.
type TransferEvent struct {
	TxHash      string
	BlockNumber uint64
	From        string
	To          string
	Amount      decimal.Decimal
}

// Receipt is the subset of a transaction receipt the confirmation tracker
// cares about.
type Receipt struct {
	BlockNumber uint64
	Success     bool
}

// EVMClient talks to an EVM chain over JSON-RPC for a single ERC-20 token.
type EVMClient struct {
	client        *ethclient.Client
	chainID       *big.Int
	tokenAddress  common.Address
	tokenDecimals int32
	operatorKey   *ecdsa.PrivateKey
	operatorAddr  common.Address
}

// NewEVMClient dials the RPC endpoint and verifies it is reachable by
// fetching the chain ID. operatorPrivKeyHex may be empty for read-only use;
// SendTokenTransfer then fails with an explicit error.
func NewEVMClient(rpcURL, tokenContract string, tokenDecimals int32, operatorPrivKeyHex string) (*EVMClient, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	c := &EVMClient{
		client:        client,
		chainID:       chainID,
		tokenAddress:  common.HexToAddress(tokenContract),
		tokenDecimals: tokenDecimals,
	}

	if operatorPrivKeyHex != "" {
		key, err := crypto.HexToECDSA(operatorPrivKeyHex)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("parse operator key: %w", err)
		}
		c.operatorKey = key
		c.operatorAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// ChainID returns the chain ID reported by the node at dial time.
func (c *EVMClient) ChainID() *big.Int {
	return c.chainID
}

// OperatorAddress returns the address transfers are sent from.
func (c *EVMClient) OperatorAddress() string {
	return c.operatorAddr.Hex()
}

// BlockNumber returns the latest block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// BlockTime returns the timestamp of the given block.
func (c *EVMClient) BlockTime(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// FilterTokenTransfers returns the token Transfer events in [fromBlock, toBlock]
// whose sender or recipient is one of the given addresses. Topic filters match
// one position at a time, so either-side matching takes two queries; a
// self-transfer shows up in both and is deduped by log position.
func (c *EVMClient) FilterTokenTransfers(ctx context.Context, fromBlock, toBlock uint64, addresses []string) ([]TransferEvent, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	topics := make([]common.Hash, 0, len(addresses))
	for _, addr := range addresses {
		topics = append(topics, common.BytesToHash(common.HexToAddress(addr).Bytes()))
	}

	queries := []ethereum.FilterQuery{
		{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{c.tokenAddress},
			Topics:    [][]common.Hash{{transferEventSig}, nil, topics},
		},
		{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{c.tokenAddress},
			Topics:    [][]common.Hash{{transferEventSig}, topics},
		},
	}

	var events []TransferEvent
	seen := make(map[string]struct{})
	for _, query := range queries {
		logs, err := c.client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("filter logs: %w", err)
		}
		for _, l := range logs {
			key := fmt.Sprintf("%s:%d", l.TxHash.Hex(), l.Index)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ev, ok := decodeTransferLog(l, c.tokenDecimals)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// decodeTransferLog turns a raw Transfer log into a TransferEvent. Logs with
// a malformed topic layout are skipped.
func decodeTransferLog(l types.Log, decimals int32) (TransferEvent, bool) {
	if len(l.Topics) != 3 || l.Topics[0] != transferEventSig {
		return TransferEvent{}, false
	}
	amount := new(big.Int).SetBytes(l.Data)
	return TransferEvent{
		TxHash:      l.TxHash.Hex(),
		BlockNumber: l.BlockNumber,
		From:        common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
		Amount:      decimal.NewFromBigInt(amount, -decimals),
	}, true
}

// TransactionByHash reports whether the transaction is known to the node and
// whether it is still pending in the mempool.
func (c *EVMClient) TransactionByHash(ctx context.Context, txHash string) (exists bool, pending bool, err error) {
	_, pending, err = c.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, pending, nil
}

// TransactionReceipt fetches the receipt for a mined transaction. Returns
// ErrTxNotFound while the transaction is unmined or unknown.
func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, domainerrors.ErrTxNotFound
		}
		return nil, err
	}
	return &Receipt{
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// SendTokenTransfer submits an ERC-20 transfer from the operator wallet and
// returns the transaction hash.
func (c *EVMClient) SendTokenTransfer(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error) {
	if c.operatorKey == nil {
		return "", errors.New("no operator key configured")
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.operatorAddr)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	data := packTransferData(common.HexToAddress(toAddress), amount.Shift(c.tokenDecimals).BigInt())

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.operatorAddr,
		To:   &c.tokenAddress,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, c.tokenAddress, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.operatorKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// packTransferData builds the calldata for transfer(address,uint256).
func packTransferData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
