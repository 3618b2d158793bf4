package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go-relayer/internal/dto"
	"go-relayer/internal/models"
	"go-relayer/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet    = "0x00000000000000000000000000000000000000aa"
	testTarget    = "0x00000000000000000000000000000000000000bb"
	testForwarder = "0x00000000000000000000000000000000000000cc"
	testOther     = "0x00000000000000000000000000000000000000dd"
)

var testSignature = "0x" + strings.Repeat("11", 32) + strings.Repeat("22", 32) + "1b"

type fakeRelayerRepo struct {
	relayers map[string]*models.Relayer
}

func (f *fakeRelayerRepo) Create(ctx context.Context, r *models.Relayer) error { return nil }
func (f *fakeRelayerRepo) Update(ctx context.Context, r *models.Relayer) error { return nil }
func (f *fakeRelayerRepo) List(ctx context.Context) ([]*models.Relayer, error) { return nil, nil }

func (f *fakeRelayerRepo) GetByID(ctx context.Context, id string) (*models.Relayer, error) {
	if r, ok := f.relayers[id]; ok {
		return r, nil
	}
	return nil, repository.ErrNotFound
}

// fakeChainReader returns scripted call outputs in order and records every
// call it sees
type fakeChainReader struct {
	outputs [][]byte
	errs    []error
	calls   int
	targets []common.Address
}

func (f *fakeChainReader) Call(ctx context.Context, chainID uint64, to common.Address, data []byte) ([]byte, error) {
	idx := f.calls
	f.calls++
	f.targets = append(f.targets, to)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.outputs) {
		return f.outputs[idx], nil
	}
	return nil, errors.New("unexpected call")
}

func boolWord(v bool) []byte {
	word := make([]byte, 32)
	if v {
		word[31] = 1
	}
	return word
}

func testRelayer(allowedContracts, allowedForwarders string) *models.Relayer {
	return &models.Relayer{
		ID:             "relayer-1",
		Name:           "test",
		ChainID:        137,
		BackendWallet:  testWallet,
		AllowedTargets: allowedContracts,
		AllowedRelays:  allowedForwarders,
	}
}

func forwardRequest() *dto.RelayRequest {
	return &dto.RelayRequest{
		Type: dto.RelayRequestTypeForward,
		Forward: &dto.ForwardRequestData{
			From:             testOther,
			To:               testTarget,
			Value:            "0",
			Gas:              "100000",
			Nonce:            "7",
			Data:             "0xdeadbeef",
			Signature:        testSignature,
			ForwarderAddress: testForwarder,
		},
	}
}

func TestAuthorizeRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown relayer", func(t *testing.T) {
		chain := &fakeChainReader{}
		svc := NewAuthorizationService(&fakeRelayerRepo{relayers: map[string]*models.Relayer{}}, chain)

		_, err := svc.Authorize(ctx, "missing", forwardRequest())

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonRelayerNotFound, rej.Reason)
		assert.Zero(t, chain.calls)
	})

	t.Run("contract not in allow-list names the contract", func(t *testing.T) {
		chain := &fakeChainReader{}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer(testOther, ""),
		}}
		svc := NewAuthorizationService(repo, chain)

		_, err := svc.Authorize(ctx, "relayer-1", forwardRequest())

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonUnauthorizedContract, rej.Reason)
		assert.Contains(t, rej.Message, testTarget)
		assert.Zero(t, chain.calls)
	})

	t.Run("forwarder not in allow-list makes no chain calls", func(t *testing.T) {
		chain := &fakeChainReader{}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer("", testOther),
		}}
		svc := NewAuthorizationService(repo, chain)

		_, err := svc.Authorize(ctx, "relayer-1", forwardRequest())

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonUnauthorizedForwarder, rej.Reason)
		assert.Contains(t, rej.Message, testForwarder)
		assert.Zero(t, chain.calls)
	})

	t.Run("non-zero value rejected before chain reads", func(t *testing.T) {
		chain := &fakeChainReader{}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer("", ""),
		}}
		svc := NewAuthorizationService(repo, chain)

		req := forwardRequest()
		req.Forward.Value = "1000000000000000000"
		_, err := svc.Authorize(ctx, "relayer-1", req)

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonNonZeroValueRelay, rej.Reason)
		assert.Zero(t, chain.calls)
	})

	t.Run("target does not trust the forwarder", func(t *testing.T) {
		chain := &fakeChainReader{outputs: [][]byte{boolWord(false)}}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer("", ""),
		}}
		svc := NewAuthorizationService(repo, chain)

		_, err := svc.Authorize(ctx, "relayer-1", forwardRequest())

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonUntrustedForwarder, rej.Reason)
		assert.Equal(t, 1, chain.calls)
		// trust is asked of the target contract, not the forwarder
		assert.Equal(t, common.HexToAddress(testTarget), chain.targets[0])
	})

	t.Run("trust check call error is a rejection", func(t *testing.T) {
		chain := &fakeChainReader{errs: []error{errors.New("execution reverted")}}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer("", ""),
		}}
		svc := NewAuthorizationService(repo, chain)

		_, err := svc.Authorize(ctx, "relayer-1", forwardRequest())

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonUntrustedForwarder, rej.Reason)
	})

	t.Run("forwarder verify returns false", func(t *testing.T) {
		chain := &fakeChainReader{outputs: [][]byte{boolWord(true), boolWord(false)}}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer("", ""),
		}}
		svc := NewAuthorizationService(repo, chain)

		_, err := svc.Authorize(ctx, "relayer-1", forwardRequest())

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonVerificationFailed, rej.Reason)
		assert.Equal(t, 2, chain.calls)
		assert.Equal(t, common.HexToAddress(testForwarder), chain.targets[1])
	})

	t.Run("malformed tagged union", func(t *testing.T) {
		chain := &fakeChainReader{}
		repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
			"relayer-1": testRelayer("", ""),
		}}
		svc := NewAuthorizationService(repo, chain)

		_, err := svc.Authorize(ctx, "relayer-1", &dto.RelayRequest{Type: dto.RelayRequestTypeForward})

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonInvalidRequest, rej.Reason)
		assert.Zero(t, chain.calls)
	})
}

func TestAuthorizeForward(t *testing.T) {
	ctx := context.Background()

	chain := &fakeChainReader{outputs: [][]byte{boolWord(true), boolWord(true)}}
	repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
		"relayer-1": testRelayer(testTarget, testForwarder),
	}}
	svc := NewAuthorizationService(repo, chain)

	intent, err := svc.Authorize(ctx, "relayer-1", forwardRequest())
	require.NoError(t, err)

	assert.Equal(t, uint64(137), intent.ChainID)
	assert.Equal(t, testWallet, intent.Wallet)
	// the prepared transaction goes to the forwarder, not the target
	assert.Equal(t, common.HexToAddress(testForwarder), intent.To)
	assert.NotEmpty(t, intent.Data)
	assert.Zero(t, intent.Value.Sign())
	assert.Equal(t, 2, chain.calls)
}

func TestAuthorizePermit(t *testing.T) {
	ctx := context.Background()

	chain := &fakeChainReader{}
	repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
		"relayer-1": testRelayer("", ""),
	}}
	svc := NewAuthorizationService(repo, chain)

	req := &dto.RelayRequest{
		Type: dto.RelayRequestTypePermit,
		Permit: &dto.PermitRequestData{
			Owner:     testOther,
			Spender:   testWallet,
			Value:     "500",
			Deadline:  "1999999999",
			To:        testTarget,
			Signature: testSignature,
		},
	}

	intent, err := svc.Authorize(ctx, "relayer-1", req)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(testTarget), intent.To)
	assert.NotEmpty(t, intent.Data)
	// permit preparation is pure, the token enforces the signature on chain
	assert.Zero(t, chain.calls)

	t.Run("rejects malformed signature", func(t *testing.T) {
		bad := &dto.RelayRequest{
			Type: dto.RelayRequestTypePermit,
			Permit: &dto.PermitRequestData{
				Owner:     testOther,
				Spender:   testWallet,
				Value:     "500",
				Deadline:  "1999999999",
				To:        testTarget,
				Signature: "0x1234",
			},
		}
		_, err := svc.Authorize(ctx, "relayer-1", bad)
		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, ReasonInvalidRequest, rej.Reason)
	})
}

func TestAuthorizeExecuteMetaTransaction(t *testing.T) {
	ctx := context.Background()

	chain := &fakeChainReader{}
	repo := &fakeRelayerRepo{relayers: map[string]*models.Relayer{
		"relayer-1": testRelayer("", ""),
	}}
	svc := NewAuthorizationService(repo, chain)

	req := &dto.RelayRequest{
		Type: dto.RelayRequestTypeExecute,
		Execute: &dto.MetaTransactionRequest{
			From:      testOther,
			To:        testTarget,
			Data:      "0xdeadbeef",
			Signature: testSignature,
		},
	}

	intent, err := svc.Authorize(ctx, "relayer-1", req)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(testTarget), intent.To)
	assert.NotEmpty(t, intent.Data)
	assert.Zero(t, chain.calls)
}

func TestParseQuantity(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"1234", 1234},
		{"0x10", 16},
		{"0X10", 16},
	} {
		got, err := parseQuantity(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got.Int64(), tc.raw)
	}

	_, err := parseQuantity("not-a-number")
	assert.Error(t, err)
}
