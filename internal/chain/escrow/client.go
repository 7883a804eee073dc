// Package escrow implements the on-chain escrow client for contest deposits
// and treasury payouts via go-ethereum.
package escrow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/betfolio/arena/internal/domain"
)

// Minimal ABI: only the deposit entry point is called from here.
const depositABI = `[
	{"name":"deposit","type":"function","stateMutability":"payable","inputs":[
		{"name":"contestId","type":"uint256"}
	],"outputs":[]}
]`

// tickWeiScale converts 4-decimal ticks to 18-decimal wei.
var tickWeiScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil)

const (
	depositGasLimit  = 150_000
	transferGasLimit = 21_000
	receiptInterval  = 2 * time.Second
	receiptAttempts  = 30
)

// Config holds connection and signing parameters for the escrow client.
type Config struct {
	RPCURL string
	// ChainID pins the expected network. Dialing a node on any other chain
	// fails fast instead of signing for the wrong network.
	ChainID int64
	// PrivateKeyHex is the treasury key, resolved via crypto.LoadKey.
	PrivateKeyHex string
}

// Client implements domain.EscrowClient against an EVM JSON-RPC endpoint.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	abi     abi.ABI
}

// New dials the RPC endpoint, verifies the chain ID, and prepares the
// treasury signer.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("escrow: rpc url is required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("escrow: dial rpc: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("escrow: chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("escrow: node chain id %d, expected %d", chainID.Int64(), cfg.ChainID)
	}

	keyHex := strings.TrimPrefix(cfg.PrivateKeyHex, "0x")
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("escrow: invalid treasury key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(depositABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("escrow: parse abi: %w", err)
	}

	return &Client{
		eth:     eth,
		chainID: chainID,
		key:     key,
		from:    ethcrypto.PubkeyToAddress(key.PublicKey),
		abi:     parsed,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// From returns the treasury account address.
func (c *Client) From() common.Address {
	return c.from
}

// ticksToWei scales a 4-decimal tick amount to 18-decimal wei.
func ticksToWei(amount domain.Ticks) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(amount)), tickWeiScale)
}

// Deposit calls deposit(contestID) on the escrow contract with the entry fee
// attached as value, waits for the receipt, and returns the tx hash. A mined
// but reverted transaction is an error carrying the hash.
func (c *Client) Deposit(ctx context.Context, contractAddr string, contestID int64, amount domain.Ticks) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("escrow: deposit amount must be positive, got %s", amount)
	}

	data, err := c.abi.Pack("deposit", big.NewInt(contestID))
	if err != nil {
		return "", fmt.Errorf("escrow: pack deposit: %w", err)
	}

	to := common.HexToAddress(contractAddr)
	txHash, err := c.submit(ctx, &to, ticksToWei(amount), depositGasLimit, data)
	if err != nil {
		return "", err
	}

	if err := c.waitMined(ctx, txHash); err != nil {
		return txHash.Hex(), err
	}
	return txHash.Hex(), nil
}

// Transfer sends amount from the treasury account to a wallet.
func (c *Client) Transfer(ctx context.Context, toAddr string, amount domain.Ticks) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("escrow: transfer amount must be positive, got %s", amount)
	}

	to := common.HexToAddress(toAddr)
	txHash, err := c.submit(ctx, &to, ticksToWei(amount), transferGasLimit, nil)
	if err != nil {
		return "", err
	}

	if err := c.waitMined(ctx, txHash); err != nil {
		return txHash.Hex(), err
	}
	return txHash.Hex(), nil
}

// TxState reports the chain status of a transaction by hash.
func (c *Client) TxState(ctx context.Context, txHash string) (domain.TxState, error) {
	hash := common.HexToHash(txHash)

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err == nil {
		if receipt.Status == types.ReceiptStatusSuccessful {
			return domain.TxConfirmed, nil
		}
		return domain.TxFailed, nil
	}

	// No receipt yet: confirm the node knows the hash at all. An unknown
	// hash is an error, not a pending deposit.
	if _, _, err := c.eth.TransactionByHash(ctx, hash); err != nil {
		return "", fmt.Errorf("escrow: lookup tx %s: %w", txHash, err)
	}
	return domain.TxPending, nil
}

// submit signs and broadcasts a transaction from the treasury account.
func (c *Client) submit(ctx context.Context, to *common.Address, value *big.Int, gasLimit uint64, data []byte) (common.Hash, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("escrow: pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("escrow: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("escrow: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("escrow: send tx: %w", err)
	}
	return signed.Hash(), nil
}

// waitMined polls for the receipt and fails on revert. The tx hash is already
// known to the caller, so a timeout here leaves the transaction recoverable.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	for i := 0; i < receiptAttempts; i++ {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("escrow: tx %s reverted", hash.Hex())
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("escrow: wait for tx %s: %w", hash.Hex(), ctx.Err())
		case <-time.After(receiptInterval):
		}
	}
	return fmt.Errorf("escrow: tx %s not mined after %d attempts", hash.Hex(), receiptAttempts)
}

// Compile-time interface check.
var _ domain.EscrowClient = (*Client)(nil)
