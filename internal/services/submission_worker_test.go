package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go-relayer/internal/config"
	"go-relayer/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChainSubmitter struct {
	mu          sync.Mutex
	nonce       uint64
	sent        []uint64
	sendErrs    []error
	receipts    map[common.Hash]*types.Receipt
	receiptErr  error
	blockNumber uint64

	sendStarted chan struct{} // signalled when a broadcast begins
	sendRelease chan struct{} // broadcast blocks until closed
}

func newFakeChainSubmitter() *fakeChainSubmitter {
	return &fakeChainSubmitter{receipts: make(map[common.Hash]*types.Receipt)}
}

func (f *fakeChainSubmitter) HasChain(chainID uint64) bool { return true }

func (f *fakeChainSubmitter) PendingNonce(ctx context.Context, chainID uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChainSubmitter) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChainSubmitter) EstimateGas(ctx context.Context, chainID uint64, to common.Address, data []byte, value *big.Int) (uint64, error) {
	return 21000, nil
}

func (f *fakeChainSubmitter) SignAndSend(ctx context.Context, chainID uint64, nonce uint64, to common.Address, data []byte, value *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	if f.sendStarted != nil {
		f.sendStarted <- struct{}{}
	}
	if f.sendRelease != nil {
		<-f.sendRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return common.Hash{}, err
		}
	}
	f.sent = append(f.sent, nonce)
	f.nonce++
	var hash common.Hash
	hash[0] = byte(len(f.sent))
	return hash, nil
}

func (f *fakeChainSubmitter) Receipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if receipt, ok := f.receipts[txHash]; ok {
		return receipt, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeChainSubmitter) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockNumber, nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []models.QueuedTransactionStatus
}

func (r *recordingNotifier) NotifyTransition(tx *models.QueuedTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tx.Status)
}

func (r *recordingNotifier) seen() []models.QueuedTransactionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.QueuedTransactionStatus, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func queuedRecord(id, wallet string, createdAt time.Time) *models.QueuedTransaction {
	return &models.QueuedTransaction{
		ID:            id,
		ChainID:       137,
		Status:        models.QueuedTransactionStatusQueued,
		WalletAddress: wallet,
		ToAddress:     testTarget,
		Data:          "0xdead",
		Value:         "0",
		MaxRetries:    3,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func testWorker(repo *fakeQueueRepo, chain ChainSubmitter, notifier TransitionNotifier) *SubmissionWorker {
	return NewSubmissionWorker(repo, chain, notifier, &config.RelayConfig{
		MaxRetries:        3,
		RetryBaseDelaySec: 1,
	})
}

func TestDrainLaneSubmitsInOrder(t *testing.T) {
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	notifier := &recordingNotifier{}
	worker := testWorker(repo, chain, notifier)

	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		record := queuedRecord(id, testWallet, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Create(context.Background(), record))
	}

	worker.drainLane(testWallet, 137)

	// sequential nonces, oldest record first
	assert.Equal(t, []uint64{0, 1, 2}, chain.sent)

	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		record := repo.get(id)
		assert.Equal(t, models.QueuedTransactionStatusSubmitted, record.Status)
		assert.NotEmpty(t, record.TxHash)
		require.NotNil(t, record.Nonce)
		assert.NotNil(t, record.SubmittedAt)
	}
	assert.Equal(t, uint64(0), *repo.get("tx-1").Nonce)

	transitions := notifier.seen()
	require.Len(t, transitions, 3)
	for _, status := range transitions {
		assert.Equal(t, models.QueuedTransactionStatusSubmitted, status)
	}
}

func TestDrainLaneIsolatesLanes(t *testing.T) {
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	worker := testWorker(repo, chain, nil)

	require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-a", testWallet, time.Now().Add(-time.Minute))))
	require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-b", testOther, time.Now().Add(-time.Minute))))

	worker.drainLane(testWallet, 137)

	assert.Equal(t, models.QueuedTransactionStatusSubmitted, repo.get("tx-a").Status)
	// the other wallet's lane is untouched
	assert.Equal(t, models.QueuedTransactionStatusQueued, repo.get("tx-b").Status)
}

func TestSubmitFailureHandling(t *testing.T) {
	t.Run("permanent rejection moves straight to errored", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		chain.sendErrs = []error{errors.New("execution reverted: paused")}
		notifier := &recordingNotifier{}
		worker := testWorker(repo, chain, notifier)

		require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))))
		worker.drainLane(testWallet, 137)

		record := repo.get("tx-1")
		assert.Equal(t, models.QueuedTransactionStatusErrored, record.Status)
		assert.Contains(t, record.LastError, "execution reverted")
		assert.Zero(t, record.RetryCount)
		assert.Equal(t, []models.QueuedTransactionStatus{models.QueuedTransactionStatusErrored}, notifier.seen())
	})

	t.Run("transient failure reschedules with backoff", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		chain.sendErrs = []error{errors.New("connection reset by peer")}
		worker := testWorker(repo, chain, nil)

		require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))))
		worker.drainLane(testWallet, 137)

		record := repo.get("tx-1")
		assert.Equal(t, models.QueuedTransactionStatusQueued, record.Status)
		assert.Equal(t, 1, record.RetryCount)
		require.NotNil(t, record.NextRetryAt)
		assert.True(t, record.NextRetryAt.After(time.Now()))
	})

	t.Run("retry budget exhaustion is terminal", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		chain.sendErrs = []error{errors.New("i/o timeout")}
		worker := testWorker(repo, chain, nil)

		record := queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))
		record.RetryCount = 2 // third attempt is the last
		require.NoError(t, repo.Create(context.Background(), record))

		worker.drainLane(testWallet, 137)

		assert.Equal(t, models.QueuedTransactionStatusErrored, repo.get("tx-1").Status)
	})
}

func TestLaneBlocksBehindRetryingHead(t *testing.T) {
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	chain.sendErrs = []error{errors.New("i/o timeout")}
	worker := testWorker(repo, chain, nil)

	base := time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-1", testWallet, base)))
	require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-2", testWallet, base.Add(time.Second))))

	worker.drainLane(testWallet, 137)

	first := repo.get("tx-1")
	assert.Equal(t, models.QueuedTransactionStatusQueued, first.Status)
	assert.Equal(t, 1, first.RetryCount)
	require.NotNil(t, first.NextRetryAt)

	// the younger record must wait behind the retrying head, otherwise it
	// would consume the head's nonce
	assert.Equal(t, models.QueuedTransactionStatusQueued, repo.get("tx-2").Status)
	assert.Empty(t, chain.sent)

	// backoff elapsed: the head goes first and takes the lower nonce
	past := time.Now().Add(-time.Millisecond)
	repo.mu.Lock()
	repo.records["tx-1"].NextRetryAt = &past
	repo.mu.Unlock()

	worker.drainLane(testWallet, 137)

	assert.Equal(t, []uint64{0, 1}, chain.sent)
	first = repo.get("tx-1")
	second := repo.get("tx-2")
	require.NotNil(t, first.Nonce)
	require.NotNil(t, second.Nonce)
	assert.Less(t, *first.Nonce, *second.Nonce)
}

func TestRetryDoesNotResurrectCancelled(t *testing.T) {
	ctx := context.Background()
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	worker := testWorker(repo, chain, nil)
	queue := NewTransactionQueueService(repo)

	require.NoError(t, repo.Create(ctx, queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))))

	// worker holds a pre-cancel snapshot while the broadcast is in flight
	snapshot := repo.get("tx-1")

	require.NoError(t, queue.Cancel(ctx, "tx-1"))

	worker.fail(ctx, snapshot, NewTransientSubmissionError(errors.New("connection reset by peer")))

	stored := repo.get("tx-1")
	assert.Equal(t, models.QueuedTransactionStatusCancelled, stored.Status)
	assert.Zero(t, stored.RetryCount)
	assert.Nil(t, stored.NextRetryAt)
}

func TestClassifySubmissionError(t *testing.T) {
	permanent := []string{
		"execution reverted: ERC20: transfer amount exceeds balance",
		"insufficient funds for gas * price + value",
		"invalid signature",
		"tx fee exceeds block gas limit",
	}
	for _, msg := range permanent {
		assert.True(t, IsPermanentSubmissionError(classifySubmissionError(errors.New(msg))), msg)
	}

	transient := []string{
		"nonce too low",
		"connection refused",
		"i/o timeout",
		"replacement transaction underpriced",
		"something never seen before",
	}
	for _, msg := range transient {
		assert.False(t, IsPermanentSubmissionError(classifySubmissionError(errors.New(msg))), msg)
	}
}

func TestCheckReceipt(t *testing.T) {
	ctx := context.Background()

	submittedRecord := func(repo *fakeQueueRepo, id string, hash common.Hash, age time.Duration) *models.QueuedTransaction {
		record := queuedRecord(id, testWallet, time.Now().Add(-age))
		record.Status = models.QueuedTransactionStatusSubmitted
		record.TxHash = hash.Hex()
		submittedAt := time.Now().Add(-age)
		record.SubmittedAt = &submittedAt
		require.NoError(t, repo.Create(ctx, record))
		return record
	}

	t.Run("inclusion moves submitted to mined", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		notifier := &recordingNotifier{}
		worker := testWorker(repo, chain, notifier)

		hash := common.HexToHash("0x01")
		record := submittedRecord(repo, "tx-1", hash, time.Minute)
		chain.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
		chain.blockNumber = 100 // depth not yet reached

		worker.checkReceipt(ctx, record)

		stored := repo.get("tx-1")
		assert.Equal(t, models.QueuedTransactionStatusMined, stored.Status)
		require.NotNil(t, stored.BlockNumber)
		assert.Equal(t, uint64(100), *stored.BlockNumber)
		assert.Equal(t, []models.QueuedTransactionStatus{models.QueuedTransactionStatusMined}, notifier.seen())
	})

	t.Run("confirmation depth promotes mined to confirmed", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		notifier := &recordingNotifier{}
		worker := testWorker(repo, chain, notifier)

		hash := common.HexToHash("0x02")
		record := submittedRecord(repo, "tx-1", hash, time.Minute)
		chain.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
		chain.blockNumber = 105 // default depth is 5

		worker.checkReceipt(ctx, record)

		assert.Equal(t, models.QueuedTransactionStatusConfirmed, repo.get("tx-1").Status)
		assert.Equal(t, []models.QueuedTransactionStatus{
			models.QueuedTransactionStatusMined,
			models.QueuedTransactionStatusConfirmed,
		}, notifier.seen())
	})

	t.Run("reverted transaction is errored", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		worker := testWorker(repo, chain, nil)

		hash := common.HexToHash("0x03")
		record := submittedRecord(repo, "tx-1", hash, time.Minute)
		chain.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}

		worker.checkReceipt(ctx, record)

		stored := repo.get("tx-1")
		assert.Equal(t, models.QueuedTransactionStatusErrored, stored.Status)
		assert.Contains(t, stored.LastError, "reverted")
	})

	t.Run("missing receipt within the wait is left alone", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		worker := testWorker(repo, chain, nil)

		record := submittedRecord(repo, "tx-1", common.HexToHash("0x04"), time.Minute)
		worker.checkReceipt(ctx, record)

		assert.Equal(t, models.QueuedTransactionStatusSubmitted, repo.get("tx-1").Status)
	})

	t.Run("missing receipt past the wait is a confirmation timeout", func(t *testing.T) {
		repo := newFakeQueueRepo()
		chain := newFakeChainSubmitter()
		worker := testWorker(repo, chain, nil)

		record := submittedRecord(repo, "tx-1", common.HexToHash("0x05"), time.Hour)
		worker.checkReceipt(ctx, record)

		stored := repo.get("tx-1")
		assert.Equal(t, models.QueuedTransactionStatusErrored, stored.Status)
		assert.Contains(t, stored.LastError, "confirmation timeout")
	})
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	worker := testWorker(repo, chain, nil)

	record := queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))
	record.Status = models.QueuedTransactionStatusConfirmed
	require.NoError(t, repo.Create(ctx, record))

	worker.markErrored(ctx, record, "late failure")

	assert.Equal(t, models.QueuedTransactionStatusConfirmed, repo.get("tx-1").Status)
	assert.Empty(t, repo.get("tx-1").LastError)
}

func TestStopWaitsForInFlightDrain(t *testing.T) {
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	chain.sendStarted = make(chan struct{})
	chain.sendRelease = make(chan struct{})
	worker := testWorker(repo, chain, nil)

	require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))))

	worker.Wake(testWallet, 137)
	<-chain.sendStarted // broadcast in flight

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a broadcast was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(chain.sendRelease)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the broadcast finished")
	}

	// the in-flight record finished its transition before shutdown completed
	assert.Equal(t, models.QueuedTransactionStatusSubmitted, repo.get("tx-1").Status)

	// a wake after stop is a no-op
	worker.Wake(testWallet, 137)
	chain.mu.Lock()
	sent := len(chain.sent)
	chain.mu.Unlock()
	assert.Equal(t, 1, sent)
}

func TestRecoverWakesQueuedLanes(t *testing.T) {
	repo := newFakeQueueRepo()
	chain := newFakeChainSubmitter()
	worker := testWorker(repo, chain, nil)

	require.NoError(t, repo.Create(context.Background(), queuedRecord("tx-1", testWallet, time.Now().Add(-time.Minute))))

	require.NoError(t, worker.recover())

	// Wake drains asynchronously
	require.Eventually(t, func() bool {
		return repo.get("tx-1").Status == models.QueuedTransactionStatusSubmitted
	}, 2*time.Second, 10*time.Millisecond)
}
