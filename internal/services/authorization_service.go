package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go-relayer/internal/clients"
	"go-relayer/internal/dto"
	"go-relayer/internal/metrics"
	"go-relayer/internal/models"
	"go-relayer/internal/repository"
	"go-relayer/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// ChainReader read-only contract call capability used for the forwarder
// trust and verification round trips
type ChainReader interface {
	Call(ctx context.Context, chainID uint64, to common.Address, data []byte) ([]byte, error)
}

// TransactionIntent the normalized, chain-ready unit produced by a
// successful authorization. Owned by the caller until handed to the queue.
type TransactionIntent struct {
	ChainID uint64
	Wallet  string // sending backend wallet
	To      common.Address
	Data    []byte
	Value   *big.Int
}

// AuthorizationService validates a relay request against relayer policy and
// cryptographic proof, producing a transaction intent or a typed rejection.
// Rejections carry no side effects: nothing is prepared or enqueued.
type AuthorizationService struct {
	relayerRepo repository.RelayerRepository
	chain       ChainReader
}

// NewAuthorizationService creates a new AuthorizationService
func NewAuthorizationService(relayerRepo repository.RelayerRepository, chain ChainReader) *AuthorizationService {
	return &AuthorizationService{
		relayerRepo: relayerRepo,
		chain:       chain,
	}
}

// Authorize runs the validation pipeline, short-circuiting on the first
// failure: relayer existence, contract allow-list, then the variant-specific
// checks. On success the returned intent carries the relayer's chain and
// backend wallet.
func (s *AuthorizationService) Authorize(ctx context.Context, relayerID string, req *dto.RelayRequest) (*TransactionIntent, error) {
	if err := req.Validate(); err != nil {
		return nil, Reject(ReasonInvalidRequest, "%v", err)
	}
	metrics.RelayRequestsTotal.WithLabelValues(string(req.Type)).Inc()

	intent, err := s.authorize(ctx, relayerID, req)
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			metrics.RelayRejectionsTotal.WithLabelValues(string(rej.Reason)).Inc()
			logrus.WithFields(logrus.Fields{
				"relayer": relayerID,
				"variant": req.Type,
				"reason":  rej.Reason,
			}).Info("Relay request rejected")
		}
		return nil, err
	}
	return intent, nil
}

func (s *AuthorizationService) authorize(ctx context.Context, relayerID string, req *dto.RelayRequest) (*TransactionIntent, error) {
	relayer, err := s.relayerRepo.GetByID(ctx, relayerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Reject(ReasonRelayerNotFound, "relayer %s not found", relayerID)
		}
		return nil, fmt.Errorf("failed to resolve relayer %s: %w", relayerID, err)
	}

	target := req.TargetContract()
	if !utils.IsEvmAddress(target) {
		return nil, Reject(ReasonInvalidRequest, "invalid target contract address %q", target)
	}
	if !relayer.AllowsContract(target) {
		return nil, Reject(ReasonUnauthorizedContract, "contract %s is not in the allowed contracts of relayer %s", utils.NormalizeAddress(target), relayer.ID)
	}

	switch req.Type {
	case dto.RelayRequestTypeForward:
		return s.authorizeForward(ctx, relayer, req.Forward)
	case dto.RelayRequestTypePermit:
		return s.authorizePermit(relayer, req.Permit)
	case dto.RelayRequestTypeExecute:
		return s.authorizeExecute(relayer, req.Execute)
	}
	return nil, Reject(ReasonInvalidRequest, "unknown relay request type %q", req.Type)
}

// authorizeForward runs the forwarder-specific pipeline: allow-list, zero
// value, on-chain trust check, then the forwarder's own verify call. The
// extra round trips exist because forwarder contracts are third-party; their
// trust relationship with the target cannot be assumed.
func (s *AuthorizationService) authorizeForward(ctx context.Context, relayer *models.Relayer, fwd *dto.ForwardRequestData) (*TransactionIntent, error) {
	if !utils.IsEvmAddress(fwd.ForwarderAddress) {
		return nil, Reject(ReasonInvalidRequest, "invalid forwarder address %q", fwd.ForwarderAddress)
	}
	if !relayer.AllowsForwarder(fwd.ForwarderAddress) {
		return nil, Reject(ReasonUnauthorizedForwarder, "forwarder %s is not in the allowed forwarders of relayer %s", utils.NormalizeAddress(fwd.ForwarderAddress), relayer.ID)
	}

	value, err := parseQuantity(fwd.Value)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid value %q: %v", fwd.Value, err)
	}
	if value.Sign() != 0 {
		return nil, Reject(ReasonNonZeroValueRelay, "relayed transactions must carry zero value, got %s", value.String())
	}

	gas, err := parseQuantity(fwd.Gas)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid gas %q: %v", fwd.Gas, err)
	}
	nonce, err := parseQuantity(fwd.Nonce)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid nonce %q: %v", fwd.Nonce, err)
	}
	callData, err := hexutil.Decode(fwd.Data)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid call data: %v", err)
	}
	signature, err := hexutil.Decode(ensureHexPrefix(fwd.Signature))
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid signature: %v", err)
	}

	forwarderAddr := common.HexToAddress(fwd.ForwarderAddress)
	targetAddr := common.HexToAddress(fwd.To)
	forwardReq := clients.ForwardRequest{
		From:  common.HexToAddress(fwd.From),
		To:    targetAddr,
		Value: value,
		Gas:   gas,
		Nonce: nonce,
		Data:  callData,
	}

	// The target contract is the source of truth for the trust relationship.
	trustedCall, err := clients.PackIsTrustedForwarder(forwarderAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to build isTrustedForwarder call: %w", err)
	}
	output, err := s.chain.Call(ctx, relayer.ChainID, targetAddr, trustedCall)
	if err != nil {
		return nil, Reject(ReasonUntrustedForwarder, "contract %s trust check for forwarder %s failed: %v", utils.NormalizeAddress(fwd.To), utils.NormalizeAddress(fwd.ForwarderAddress), err)
	}
	trusted, err := clients.UnpackIsTrustedForwarder(output)
	if err != nil || !trusted {
		return nil, Reject(ReasonUntrustedForwarder, "contract %s does not trust forwarder %s", utils.NormalizeAddress(fwd.To), utils.NormalizeAddress(fwd.ForwarderAddress))
	}

	verifyCall, err := clients.PackForwardVerify(forwardReq, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify call: %w", err)
	}
	output, err = s.chain.Call(ctx, relayer.ChainID, forwarderAddr, verifyCall)
	if err != nil {
		return nil, Reject(ReasonVerificationFailed, "forwarder %s verify call failed: %v", utils.NormalizeAddress(fwd.ForwarderAddress), err)
	}
	verified, err := clients.UnpackForwardVerify(output)
	if err != nil || !verified {
		return nil, Reject(ReasonVerificationFailed, "forwarder %s rejected the request signature", utils.NormalizeAddress(fwd.ForwarderAddress))
	}

	executeData, err := clients.PackForwardExecute(forwardReq, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to build execute call data: %w", err)
	}

	return &TransactionIntent{
		ChainID: relayer.ChainID,
		Wallet:  relayer.BackendWallet,
		To:      forwarderAddr,
		Data:    executeData,
		Value:   big.NewInt(0),
	}, nil
}

// authorizePermit prepares token.permit; the token contract enforces the
// signature at submission time, so no read round trip precedes preparation
func (s *AuthorizationService) authorizePermit(relayer *models.Relayer, permit *dto.PermitRequestData) (*TransactionIntent, error) {
	v, r, sig, err := utils.SplitSignature(permit.Signature)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid signature: %v", err)
	}
	value, err := parseQuantity(permit.Value)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid value %q: %v", permit.Value, err)
	}
	deadline, err := parseQuantity(permit.Deadline)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid deadline %q: %v", permit.Deadline, err)
	}

	data, err := clients.PackPermit(
		common.HexToAddress(permit.Owner),
		common.HexToAddress(permit.Spender),
		value, deadline, v, r, sig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build permit call data: %w", err)
	}

	return &TransactionIntent{
		ChainID: relayer.ChainID,
		Wallet:  relayer.BackendWallet,
		To:      common.HexToAddress(permit.To),
		Data:    data,
		Value:   big.NewInt(0),
	}, nil
}

// authorizeExecute prepares executeMetaTransaction; correctness of the
// signature is enforced by the contract itself on submission
func (s *AuthorizationService) authorizeExecute(relayer *models.Relayer, exec *dto.MetaTransactionRequest) (*TransactionIntent, error) {
	v, r, sig, err := utils.SplitSignature(exec.Signature)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid signature: %v", err)
	}
	functionSignature, err := hexutil.Decode(exec.Data)
	if err != nil {
		return nil, Reject(ReasonInvalidRequest, "invalid call data: %v", err)
	}

	data, err := clients.PackExecuteMetaTransaction(
		common.HexToAddress(exec.From),
		functionSignature, r, sig, v,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build executeMetaTransaction call data: %w", err)
	}

	return &TransactionIntent{
		ChainID: relayer.ChainID,
		Wallet:  relayer.BackendWallet,
		To:      common.HexToAddress(exec.To),
		Data:    data,
		Value:   big.NewInt(0),
	}, nil
}

// parseQuantity parses a decimal or 0x-hex quantity string; empty means zero
func parseQuantity(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	if value, ok := new(big.Int).SetString(raw, 10); ok {
		return value, nil
	}
	if len(raw) > 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		if value, ok := new(big.Int).SetString(raw[2:], 16); ok {
			return value, nil
		}
	}
	return nil, fmt.Errorf("not a decimal or hex quantity")
}

func ensureHexPrefix(raw string) string {
	if len(raw) >= 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		return raw
	}
	return "0x" + raw
}
