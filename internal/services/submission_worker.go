package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-relayer/internal/config"
	"go-relayer/internal/metrics"
	"go-relayer/internal/models"
	"go-relayer/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// ChainSubmitter the chain capability the worker needs: nonce and gas
// queries, broadcast, and receipt polling. Implemented by clients.ChainClient.
type ChainSubmitter interface {
	HasChain(chainID uint64) bool
	PendingNonce(ctx context.Context, chainID uint64) (uint64, error)
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID uint64, to common.Address, data []byte, value *big.Int) (uint64, error)
	SignAndSend(ctx context.Context, chainID uint64, nonce uint64, to common.Address, data []byte, value *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error)
	Receipt(ctx context.Context, chainID uint64, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context, chainID uint64) (uint64, error)
}

// SubmissionWorker drains the transaction queue. Submissions are serialized
// per (wallet, chain) lane so each consumes exactly the next sequential
// nonce; distinct lanes run fully in parallel. The worker is the only
// component that mutates QueuedTransaction records after enqueue, and every
// transition is conditional on the record's current status.
type SubmissionWorker struct {
	repo     repository.QueuedTransactionRepository
	chain    ChainSubmitter
	notifier TransitionNotifier
	relayCfg *config.RelayConfig

	laneLocks map[string]*sync.Mutex
	lockMu    sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSubmissionWorker creates the worker
func NewSubmissionWorker(repo repository.QueuedTransactionRepository, chain ChainSubmitter, notifier TransitionNotifier, relayCfg *config.RelayConfig) *SubmissionWorker {
	return &SubmissionWorker{
		repo:      repo,
		chain:     chain,
		notifier:  notifier,
		relayCfg:  relayCfg,
		laneLocks: make(map[string]*sync.Mutex),
		stopChan:  make(chan struct{}),
	}
}

// Start recovers in-flight records from a previous run and launches the
// periodic sweeps
func (w *SubmissionWorker) Start() {
	if err := w.recover(); err != nil {
		logrus.WithError(err).Error("Failed to recover in-flight transactions")
	}

	w.wg.Add(2)
	go w.queueSweepLoop()
	go w.receiptPollLoop()
	logrus.Info("Submission worker started")
}

// Stop shuts the worker down and waits for the sweeps to finish
func (w *SubmissionWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	logrus.Info("Submission worker stopped")
}

// Wake triggers an asynchronous drain of one submission lane. Drains are
// tracked so Stop waits out an in-flight broadcast.
func (w *SubmissionWorker) Wake(wallet string, chainID uint64) {
	select {
	case <-w.stopChan:
		return
	default:
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.drainLane(wallet, chainID)
	}()
}

// laneLock returns the mutex serializing one (wallet, chain) lane
func (w *SubmissionWorker) laneLock(wallet string, chainID uint64) *sync.Mutex {
	key := models.LaneKey(wallet, chainID)

	w.lockMu.RLock()
	lock, exists := w.laneLocks[key]
	w.lockMu.RUnlock()
	if exists {
		return lock
	}

	w.lockMu.Lock()
	defer w.lockMu.Unlock()
	if lock, exists := w.laneLocks[key]; exists {
		return lock
	}
	lock = &sync.Mutex{}
	w.laneLocks[key] = lock
	return lock
}

// drainLane submits queued records for one lane in enqueue order. When the
// lane head is still inside its retry delay the whole lane waits: submitting
// a younger record first would hand it the head's nonce.
func (w *SubmissionWorker) drainLane(wallet string, chainID uint64) {
	lock := w.laneLock(wallet, chainID)
	lock.Lock()
	defer lock.Unlock()

	for {
		select {
		case <-w.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		record, err := w.repo.NextQueued(ctx, wallet, chainID)
		if err != nil {
			cancel()
			if !errors.Is(err, repository.ErrNotFound) {
				logrus.WithError(err).WithFields(logrus.Fields{
					"wallet":   wallet,
					"chain_id": chainID,
				}).Error("Failed to fetch next queued transaction")
			}
			return
		}

		if record.NextRetryAt != nil && record.NextRetryAt.After(time.Now()) {
			// lane blocks behind the retrying head; the periodic sweep
			// re-wakes the lane once the delay elapses
			cancel()
			return
		}

		w.submit(ctx, record)
		cancel()
	}
}

// submit signs and broadcasts one record with the lane's next nonce
func (w *SubmissionWorker) submit(ctx context.Context, record *models.QueuedTransaction) {
	chainLabel := strconv.FormatUint(record.ChainID, 10)
	start := time.Now()

	if !w.chain.HasChain(record.ChainID) {
		w.fail(ctx, record, NewPermanentSubmissionError(fmt.Errorf("no client for chain ID %d", record.ChainID)))
		return
	}

	data, err := hexutil.Decode(record.Data)
	if err != nil {
		w.fail(ctx, record, NewPermanentSubmissionError(fmt.Errorf("corrupt call data: %w", err)))
		return
	}
	value, ok := new(big.Int).SetString(record.Value, 10)
	if !ok {
		w.fail(ctx, record, NewPermanentSubmissionError(fmt.Errorf("corrupt value %q", record.Value)))
		return
	}
	to := common.HexToAddress(record.ToAddress)

	nonce, err := w.chain.PendingNonce(ctx, record.ChainID)
	if err != nil {
		w.fail(ctx, record, NewTransientSubmissionError(fmt.Errorf("failed to get nonce: %w", err)))
		return
	}
	gasPrice, err := w.chain.GasPrice(ctx, record.ChainID)
	if err != nil {
		w.fail(ctx, record, NewTransientSubmissionError(err))
		return
	}
	gasLimit, err := w.chain.EstimateGas(ctx, record.ChainID, to, data, value)
	if err != nil {
		// estimation reverts when the call itself would revert
		w.fail(ctx, record, classifySubmissionError(err))
		return
	}

	txHash, err := w.chain.SignAndSend(ctx, record.ChainID, nonce, to, data, value, gasLimit, gasPrice)
	if err != nil {
		w.fail(ctx, record, classifySubmissionError(err))
		return
	}

	now := time.Now()
	err = w.repo.TransitionStatus(ctx, record.ID,
		[]models.QueuedTransactionStatus{models.QueuedTransactionStatusQueued},
		models.QueuedTransactionStatusSubmitted,
		map[string]interface{}{
			"nonce":        nonce,
			"tx_hash":      txHash.Hex(),
			"gas_limit":    gasLimit,
			"gas_price":    gasPrice.String(),
			"submitted_at": &now,
		})
	if err != nil {
		// Already broadcast; losing the CAS here means an operator raced a
		// cancel against an in-flight submission. The chain wins.
		logrus.WithError(err).WithFields(logrus.Fields{
			"queue_id": record.ID,
			"tx_hash":  txHash.Hex(),
		}).Warn("Submitted transaction could not be marked, status moved concurrently")
		return
	}

	metrics.TransactionsSubmitted.WithLabelValues(chainLabel).Inc()
	metrics.SubmissionDuration.WithLabelValues(chainLabel).Observe(time.Since(start).Seconds())
	logrus.WithFields(logrus.Fields{
		"queue_id": record.ID,
		"chain_id": record.ChainID,
		"nonce":    nonce,
		"tx_hash":  txHash.Hex(),
	}).Info("Transaction submitted")

	if w.notifier != nil {
		updated, err := w.repo.GetByID(ctx, record.ID)
		if err == nil {
			w.notifier.NotifyTransition(updated)
		}
	}
}

// fail applies the retry policy: transient errors reschedule the same
// record with exponential backoff, permanent errors and exhausted budgets
// move it to errored
func (w *SubmissionWorker) fail(ctx context.Context, record *models.QueuedTransaction, err error) {
	chainLabel := strconv.FormatUint(record.ChainID, 10)
	permanent := IsPermanentSubmissionError(err)
	attempts := record.RetryCount + 1
	maxRetries := record.MaxRetries
	if maxRetries <= 0 {
		maxRetries = w.relayCfg.Retries()
	}

	if permanent || attempts >= maxRetries {
		w.markErrored(ctx, record, err.Error())
		return
	}

	delay := w.relayCfg.RetryBaseDelay() << uint(record.RetryCount)
	if maxDelay := w.relayCfg.RetryMaxDelay(); delay > maxDelay {
		delay = maxDelay
	}
	nextRetry := time.Now().Add(delay)

	if retryErr := w.repo.RecordRetry(ctx, record.ID, err.Error(), nextRetry); retryErr != nil {
		if errors.Is(retryErr, repository.ErrStaleStatus) {
			// record left the queued state while the submission was in
			// flight, most likely an operator cancel; nothing to reschedule
			logrus.WithField("queue_id", record.ID).Info("Retry skipped, transaction status moved concurrently")
			return
		}
		logrus.WithError(retryErr).WithField("queue_id", record.ID).Error("Failed to schedule retry")
		return
	}

	metrics.TransactionRetries.WithLabelValues(chainLabel).Inc()
	logrus.WithError(err).WithFields(logrus.Fields{
		"queue_id":   record.ID,
		"attempt":    attempts,
		"next_retry": nextRetry,
	}).Warn("Transient submission failure, scheduled retry")
}

// markErrored moves a record to the terminal errored state. Conditional on
// the record not already being terminal, so racing workers cannot overwrite
// confirmed with errored.
func (w *SubmissionWorker) markErrored(ctx context.Context, record *models.QueuedTransaction, reason string) {
	err := w.repo.TransitionStatus(ctx, record.ID,
		[]models.QueuedTransactionStatus{
			models.QueuedTransactionStatusQueued,
			models.QueuedTransactionStatusSubmitted,
			models.QueuedTransactionStatusMined,
		},
		models.QueuedTransactionStatusErrored,
		map[string]interface{}{"last_error": reason})
	if err != nil {
		if !errors.Is(err, repository.ErrStaleStatus) {
			logrus.WithError(err).WithField("queue_id", record.ID).Error("Failed to mark transaction errored")
		}
		return
	}

	metrics.TransactionTerminal.WithLabelValues(strconv.FormatUint(record.ChainID, 10), string(models.QueuedTransactionStatusErrored)).Inc()
	logrus.WithFields(logrus.Fields{
		"queue_id": record.ID,
		"reason":   reason,
	}).Error("Transaction errored")

	if w.notifier != nil {
		updated, err := w.repo.GetByID(ctx, record.ID)
		if err == nil {
			w.notifier.NotifyTransition(updated)
		}
	}
}

// recover re-adopts in-flight records after a restart: queued lanes are
// woken, submitted/mined records fall to the receipt poller
func (w *SubmissionWorker) recover() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := w.repo.FindByStatus(ctx,
		models.QueuedTransactionStatusQueued,
		models.QueuedTransactionStatusSubmitted,
		models.QueuedTransactionStatusMined,
	)
	if err != nil {
		return fmt.Errorf("failed to query in-flight transactions: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	logrus.WithField("count", len(records)).Info("Recovering in-flight transactions")

	lanes := make(map[string]*models.QueuedTransaction)
	for _, record := range records {
		if record.Status == models.QueuedTransactionStatusQueued {
			lanes[record.LaneKey()] = record
		}
	}
	for _, record := range lanes {
		w.Wake(record.WalletAddress, record.ChainID)
	}
	return nil
}

// queueSweepLoop periodically wakes lanes holding queued records, which
// picks up retries whose delay has elapsed
func (w *SubmissionWorker) queueSweepLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.relayCfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			records, err := w.repo.FindByStatus(ctx, models.QueuedTransactionStatusQueued)
			cancel()
			if err != nil {
				logrus.WithError(err).Error("Queue sweep failed")
				continue
			}

			lanes := make(map[string]*models.QueuedTransaction)
			depthByChain := make(map[uint64]float64)
			for _, record := range records {
				lanes[record.LaneKey()] = record
				depthByChain[record.ChainID]++
			}
			metrics.QueueDepth.Reset()
			for chainID, depth := range depthByChain {
				metrics.QueueDepth.WithLabelValues(strconv.FormatUint(chainID, 10)).Set(depth)
			}
			for _, record := range lanes {
				w.Wake(record.WalletAddress, record.ChainID)
			}
		}
	}
}

// receiptPollLoop tracks submitted transactions to inclusion and through
// the confirmation depth
func (w *SubmissionWorker) receiptPollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.relayCfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			records, err := w.repo.FindSubmittedBefore(ctx, time.Now())
			if err != nil {
				cancel()
				logrus.WithError(err).Error("Receipt poll query failed")
				continue
			}
			for _, record := range records {
				w.checkReceipt(ctx, record)
			}
			cancel()
		}
	}
}

// checkReceipt advances one submitted/mined record: submitted→mined on
// inclusion, mined→confirmed once the confirmation depth has elapsed,
// errored on revert or confirmation timeout
func (w *SubmissionWorker) checkReceipt(ctx context.Context, record *models.QueuedTransaction) {
	if record.TxHash == "" {
		return
	}
	chainLabel := strconv.FormatUint(record.ChainID, 10)

	receipt, err := w.chain.Receipt(ctx, record.ChainID, common.HexToHash(record.TxHash))
	if err != nil {
		// still pending; escalate only past the confirmation wait
		if record.Status == models.QueuedTransactionStatusSubmitted &&
			record.SubmittedAt != nil &&
			time.Since(*record.SubmittedAt) > w.relayCfg.ConfirmationWait() {
			w.markErrored(ctx, record, fmt.Sprintf("confirmation timeout: no receipt after %s", w.relayCfg.ConfirmationWait()))
		}
		return
	}

	if receipt.Status == types.ReceiptStatusFailed {
		w.markErrored(ctx, record, "transaction reverted on chain")
		return
	}

	blockNumber := receipt.BlockNumber.Uint64()

	if record.Status == models.QueuedTransactionStatusSubmitted {
		now := time.Now()
		err := w.repo.TransitionStatus(ctx, record.ID,
			[]models.QueuedTransactionStatus{models.QueuedTransactionStatusSubmitted},
			models.QueuedTransactionStatusMined,
			map[string]interface{}{
				"block_number": blockNumber,
				"mined_at":     &now,
			})
		if err != nil {
			if !errors.Is(err, repository.ErrStaleStatus) {
				logrus.WithError(err).WithField("queue_id", record.ID).Error("Failed to mark transaction mined")
			}
			return
		}
		record.Status = models.QueuedTransactionStatusMined
		record.BlockNumber = &blockNumber

		logrus.WithFields(logrus.Fields{
			"queue_id": record.ID,
			"tx_hash":  record.TxHash,
			"block":    blockNumber,
		}).Info("Transaction mined")

		if w.notifier != nil {
			updated, err := w.repo.GetByID(ctx, record.ID)
			if err == nil {
				w.notifier.NotifyTransition(updated)
			}
		}
	}

	if record.Status != models.QueuedTransactionStatusMined {
		return
	}

	currentBlock, err := w.chain.BlockNumber(ctx, record.ChainID)
	if err != nil {
		logrus.WithError(err).WithField("chain_id", record.ChainID).Warn("Failed to get block number")
		return
	}
	if currentBlock < blockNumber+uint64(w.relayCfg.Depth()) {
		return
	}

	now := time.Now()
	err = w.repo.TransitionStatus(ctx, record.ID,
		[]models.QueuedTransactionStatus{models.QueuedTransactionStatusMined},
		models.QueuedTransactionStatusConfirmed,
		map[string]interface{}{"confirmed_at": &now})
	if err != nil {
		if !errors.Is(err, repository.ErrStaleStatus) {
			logrus.WithError(err).WithField("queue_id", record.ID).Error("Failed to mark transaction confirmed")
		}
		return
	}

	metrics.TransactionTerminal.WithLabelValues(chainLabel, string(models.QueuedTransactionStatusConfirmed)).Inc()
	logrus.WithFields(logrus.Fields{
		"queue_id": record.ID,
		"tx_hash":  record.TxHash,
	}).Info("Transaction confirmed")

	if w.notifier != nil {
		updated, err := w.repo.GetByID(ctx, record.ID)
		if err == nil {
			w.notifier.NotifyTransition(updated)
		}
	}
}

// classifySubmissionError sorts chain errors into transient (retry with
// backoff) and permanent (terminal). Unknown errors are treated as
// transient; the retry budget bounds the damage of a misclassification.
func classifySubmissionError(err error) *SubmissionError {
	msg := strings.ToLower(err.Error())

	permanentMarkers := []string{
		"execution reverted",
		"insufficient funds",
		"invalid signature",
		"exceeds block gas limit",
		"intrinsic gas too low",
		"invalid opcode",
		"max code size exceeded",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return NewPermanentSubmissionError(err)
		}
	}
	return NewTransientSubmissionError(err)
}
