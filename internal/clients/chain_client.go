package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go-relayer/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// EVMClient the subset of ethclient.Client the relayer depends on
type EVMClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// chainAccount a connected chain plus the backend wallet key for it
type chainAccount struct {
	client  EVMClient
	network *config.NetworkConfig
	key     *ecdsa.PrivateKey
	address common.Address
}

// ChainClient multi-chain RPC client pool. One entry per enabled network,
// each carrying the backend wallet signing key for that chain.
type ChainClient struct {
	accounts map[uint64]*chainAccount
}

// NewChainClient creates an empty chain client pool
func NewChainClient() *ChainClient {
	return &ChainClient{
		accounts: make(map[uint64]*chainAccount),
	}
}

// InitializeClients dials every enabled network, trying RPC endpoints in
// order until one answers, and loads the backend wallet key.
func (c *ChainClient) InitializeClients() error {
	if config.AppConfig == nil {
		return fmt.Errorf("config not loaded")
	}

	for networkName, networkConfig := range config.AppConfig.Blockchain.Networks {
		if !networkConfig.Enabled {
			continue
		}

		var client *ethclient.Client
		var lastErr error
		connected := false
		for _, rpcEndpoint := range networkConfig.RPCEndpoints {
			client, lastErr = ethclient.Dial(rpcEndpoint)
			if lastErr != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, lastErr = client.NetworkID(ctx)
			cancel()
			if lastErr == nil {
				connected = true
				logrus.WithFields(logrus.Fields{
					"network":  networkName,
					"chain_id": networkConfig.ChainID,
					"endpoint": rpcEndpoint,
				}).Info("Connected to RPC endpoint")
				break
			}
			client.Close()
		}
		if !connected {
			return fmt.Errorf("failed to connect to %s network: %w", networkName, lastErr)
		}

		key, err := parsePrivateKey(networkConfig.PrivateKey)
		if err != nil {
			return fmt.Errorf("invalid private key for %s network: %w", networkName, err)
		}

		c.accounts[networkConfig.ChainID] = &chainAccount{
			client:  client,
			network: networkConfig,
			key:     key,
			address: crypto.PubkeyToAddress(key.PublicKey),
		}
	}

	logrus.WithField("chains", len(c.accounts)).Info("Chain clients initialized")
	return nil
}

// RegisterChain installs a client and signing key for a chain directly.
// Production wiring goes through InitializeClients; tests use this.
func (c *ChainClient) RegisterChain(chainID uint64, client EVMClient, network *config.NetworkConfig, key *ecdsa.PrivateKey) {
	c.accounts[chainID] = &chainAccount{
		client:  client,
		network: network,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("private key not configured")
	}
	return crypto.HexToECDSA(trimmed)
}

func (c *ChainClient) account(chainID uint64) (*chainAccount, error) {
	acct, ok := c.accounts[chainID]
	if !ok {
		return nil, fmt.Errorf("no client for chain ID %d", chainID)
	}
	return acct, nil
}

// HasChain reports whether a chain is configured
func (c *ChainClient) HasChain(chainID uint64) bool {
	_, ok := c.accounts[chainID]
	return ok
}

// ChainIDs returns all configured chain IDs
func (c *ChainClient) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.accounts))
	for chainID := range c.accounts {
		ids = append(ids, chainID)
	}
	return ids
}

// SigningAddress returns the backend wallet address for a chain
func (c *ChainClient) SigningAddress(chainID uint64) (common.Address, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return common.Address{}, err
	}
	return acct.address, nil
}

// Call executes a read-only contract call
func (c *ChainClient) Call(ctx context.Context, chainID uint64, to common.Address, data []byte) ([]byte, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{
		From: acct.address,
		To:   &to,
		Data: data,
	}
	return acct.client.CallContract(ctx, msg, nil)
}

// PendingNonce returns the next nonce for the backend wallet on a chain
func (c *ChainClient) PendingNonce(ctx context.Context, chainID uint64) (uint64, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return 0, err
	}
	return acct.client.PendingNonceAt(ctx, acct.address)
}

// GasPrice returns the gas price to use: the configured fixed price when
// set, otherwise the node suggestion bumped by 20%.
func (c *ChainClient) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return nil, err
	}
	if acct.network.GasPrice != "" && acct.network.GasPrice != "auto" {
		gasPrice, ok := new(big.Int).SetString(acct.network.GasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid configured gas price %q", acct.network.GasPrice)
		}
		return gasPrice, nil
	}
	suggested, err := acct.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	bumped := new(big.Int).Mul(suggested, big.NewInt(120))
	return bumped.Div(bumped, big.NewInt(100)), nil
}

// EstimateGas estimates the gas limit for a call, honoring any configured
// fixed limit for the network.
func (c *ChainClient) EstimateGas(ctx context.Context, chainID uint64, to common.Address, data []byte, value *big.Int) (uint64, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return 0, err
	}
	if acct.network.GasLimit > 0 {
		return acct.network.GasLimit, nil
	}
	msg := ethereum.CallMsg{
		From:  acct.address,
		To:    &to,
		Data:  data,
		Value: value,
	}
	gasLimit, err := acct.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	// headroom for state drift between estimate and inclusion
	return gasLimit + gasLimit/5, nil
}

// SignAndSend signs a legacy transaction with the backend wallet key and
// broadcasts it. Returns the transaction hash.
func (c *ChainClient) SignAndSend(ctx context.Context, chainID uint64, nonce uint64, to common.Address, data []byte, value *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signedTx, err := types.SignTx(tx, signer, acct.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := acct.client.SendTransaction(ctx, signedTx); err != nil {
		return signedTx.Hash(), err
	}
	return signedTx.Hash(), nil
}

// Receipt returns the receipt for a transaction hash, or the underlying
// not-found error while the transaction is still pending.
func (c *ChainClient) Receipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return nil, err
	}
	return acct.client.TransactionReceipt(ctx, txHash)
}

// BlockNumber returns the latest block number for a chain
func (c *ChainClient) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	acct, err := c.account(chainID)
	if err != nil {
		return 0, err
	}
	return acct.client.BlockNumber(ctx)
}
