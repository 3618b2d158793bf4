package clients

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ForwardRequest the ERC-2771 forward request tuple, field order matches the
// forwarder contract struct exactly.
type ForwardRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Gas   *big.Int
	Nonce *big.Int
	Data  []byte
}

const forwarderABIJSON = `[
	{
		"inputs": [
			{"components": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "gas", "type": "uint256"},
				{"name": "nonce", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			], "name": "req", "type": "tuple"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "execute",
		"outputs": [
			{"name": "", "type": "bool"},
			{"name": "", "type": "bytes"}
		],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"components": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "gas", "type": "uint256"},
				{"name": "nonce", "type": "uint256"},
				{"name": "data", "type": "bytes"}
			], "name": "req", "type": "tuple"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "verify",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const trustedForwarderABIJSON = `[
	{
		"inputs": [{"name": "forwarder", "type": "address"}],
		"name": "isTrustedForwarder",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const permitABIJSON = `[
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "deadline", "type": "uint256"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"name": "permit",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const metaTransactionABIJSON = `[
	{
		"inputs": [
			{"name": "userAddress", "type": "address"},
			{"name": "functionSignature", "type": "bytes"},
			{"name": "sigR", "type": "bytes32"},
			{"name": "sigS", "type": "bytes32"},
			{"name": "sigV", "type": "uint8"}
		],
		"name": "executeMetaTransaction",
		"outputs": [{"name": "", "type": "bytes"}],
		"stateMutability": "payable",
		"type": "function"
	}
]`

var (
	forwarderABI        abi.ABI
	trustedForwarderABI abi.ABI
	permitABI           abi.ABI
	metaTransactionABI  abi.ABI
)

func init() {
	forwarderABI = mustParseABI(forwarderABIJSON)
	trustedForwarderABI = mustParseABI(trustedForwarderABIJSON)
	permitABI = mustParseABI(permitABIJSON)
	metaTransactionABI = mustParseABI(metaTransactionABIJSON)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// PackForwardExecute builds calldata for forwarder.execute(req, signature)
func PackForwardExecute(req ForwardRequest, signature []byte) ([]byte, error) {
	data, err := forwarderABI.Pack("execute", req, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return data, nil
}

// PackForwardVerify builds calldata for forwarder.verify(req, signature)
func PackForwardVerify(req ForwardRequest, signature []byte) ([]byte, error) {
	data, err := forwarderABI.Pack("verify", req, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack verify: %w", err)
	}
	return data, nil
}

// UnpackForwardVerify decodes the boolean result of forwarder.verify
func UnpackForwardVerify(output []byte) (bool, error) {
	values, err := forwarderABI.Unpack("verify", output)
	if err != nil {
		return false, fmt.Errorf("failed to unpack verify result: %w", err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unexpected verify output arity: %d", len(values))
	}
	ok, valid := values[0].(bool)
	if !valid {
		return false, fmt.Errorf("unexpected verify output type %T", values[0])
	}
	return ok, nil
}

// PackIsTrustedForwarder builds calldata for target.isTrustedForwarder(forwarder)
func PackIsTrustedForwarder(forwarder common.Address) ([]byte, error) {
	data, err := trustedForwarderABI.Pack("isTrustedForwarder", forwarder)
	if err != nil {
		return nil, fmt.Errorf("failed to pack isTrustedForwarder: %w", err)
	}
	return data, nil
}

// UnpackIsTrustedForwarder decodes the boolean result of isTrustedForwarder
func UnpackIsTrustedForwarder(output []byte) (bool, error) {
	values, err := trustedForwarderABI.Unpack("isTrustedForwarder", output)
	if err != nil {
		return false, fmt.Errorf("failed to unpack isTrustedForwarder result: %w", err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unexpected isTrustedForwarder output arity: %d", len(values))
	}
	ok, valid := values[0].(bool)
	if !valid {
		return false, fmt.Errorf("unexpected isTrustedForwarder output type %T", values[0])
	}
	return ok, nil
}

// PackPermit builds calldata for token.permit(owner, spender, value, deadline, v, r, s)
func PackPermit(owner, spender common.Address, value, deadline *big.Int, v uint8, r, s [32]byte) ([]byte, error) {
	data, err := permitABI.Pack("permit", owner, spender, value, deadline, v, r, s)
	if err != nil {
		return nil, fmt.Errorf("failed to pack permit: %w", err)
	}
	return data, nil
}

// PackExecuteMetaTransaction builds calldata for
// executeMetaTransaction(userAddress, functionSignature, sigR, sigS, sigV)
func PackExecuteMetaTransaction(userAddress common.Address, functionSignature []byte, r, s [32]byte, v uint8) ([]byte, error) {
	data, err := metaTransactionABI.Pack("executeMetaTransaction", userAddress, functionSignature, r, s, v)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeMetaTransaction: %w", err)
	}
	return data, nil
}
