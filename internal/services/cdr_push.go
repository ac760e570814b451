package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"roaming/internal/errs"
	"roaming/internal/lock"
	"roaming/internal/logging"
	"roaming/internal/models"
	"roaming/internal/workpool"

	"github.com/sirupsen/logrus"
)

// Lock resources of the CDR push.
const (
	ResourcePushCdrs = "push-cdrs"
	resourcePushCdr  = "push-cdr:"
)

func TransactionResource(txID string) string { return resourcePushCdr + txID }

type PushOutcome string

const (
	PushPushed               PushOutcome = "pushed"
	PushSkippedLocked        PushOutcome = "skipped-locked"
	PushSkippedMissing       PushOutcome = "skipped-missing"
	PushSkippedAlreadyPushed PushOutcome = "skipped-already-pushed"
	PushFailed               PushOutcome = "failed"
)

const defaultCdrBatchSize = 500

// ErrLockManager marks a failure of the lock backend itself, as opposed to a busy lock.
var ErrLockManager = errors.New("lock manager failure")

// CdrPushReport describes one run. Ran is false when another run held the tenant lock.
type CdrPushReport struct {
	Ran      bool                   `json:"ran"`
	Outcomes map[string]PushOutcome `json:"outcomes"`
}

// CdrPushTask finalizes stopped roaming transactions that have no CDR yet.
// Candidates are handled one at a time, each under its own lock.
type CdrPushTask struct {
	Transactions TransactionStore
	Stations     StationStore
	Tags         TagStore
	Locker       lock.Locker
	Finalizer    Finalizer
	BatchSize    int
	Logger       logrus.FieldLogger
}

func NewCdrPushTask(txs TransactionStore, stations StationStore, tags TagStore, locker lock.Locker, f Finalizer, logger logrus.FieldLogger) *CdrPushTask {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CdrPushTask{
		Transactions: txs,
		Stations:     stations,
		Tags:         tags,
		Locker:       locker,
		Finalizer:    f,
		BatchSize:    defaultCdrBatchSize,
		Logger:       logger,
	}
}

func (t *CdrPushTask) Name() string { return JobPushCdrs }

func (t *CdrPushTask) Mode() workpool.Mode { return workpool.Sequential }

// Run is the scheduled entry point. Nothing escapes it.
func (t *CdrPushTask) Run(ctx context.Context, tenantID string) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogError(t.Logger, "services", "CdrPushTask.Run", "panic", string(debug.Stack()),
				errs.Newf(errs.CodeInternal, "panic: %v", r).With("tenantId", tenantID))
		}
	}()
	if _, err := t.Execute(ctx, tenantID); err != nil {
		logging.LogError(t.Logger, "services", "CdrPushTask.Run", "push cdrs", map[string]string{"tenantId": tenantID}, err)
	}
}

// Execute runs once and reports per transaction outcomes. Lock manager and
// candidate query errors are returned; item failures are only reported.
func (t *CdrPushTask) Execute(ctx context.Context, tenantID string) (*CdrPushReport, error) {
	log := t.Logger.WithFields(logrus.Fields{"job": JobPushCdrs, "tenantId": tenantID})

	tenantLock, err := t.Locker.Acquire(ctx, tenantID, ResourcePushCdrs)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "acquire tenant lock", errors.Join(ErrLockManager, err)).With("tenantId", tenantID)
	}
	report := &CdrPushReport{Outcomes: make(map[string]PushOutcome)}
	if tenantLock == nil {
		log.Debug("cdr push already running, skipped")
		return report, nil
	}
	defer t.release(ctx, tenantLock)
	report.Ran = true

	candidates, err := t.Transactions.ListAwaitingCdr(ctx, tenantID, t.BatchSize)
	if err != nil {
		return report, errs.Wrap(errs.CodeInternal, "list transactions awaiting cdr", err).With("tenantId", tenantID)
	}

	var mu sync.Mutex
	var fatal error
	_ = workpool.Run(ctx, t.Mode(), candidates, func(ctx context.Context, tx models.Transaction) error {
		mu.Lock()
		stop := fatal != nil
		mu.Unlock()
		if stop {
			return nil
		}
		// keep the tenant lease alive across a long batch
		if err := t.Locker.Refresh(ctx, tenantLock); err != nil {
			mu.Lock()
			fatal = errs.Wrap(errs.CodeInternal, "refresh tenant lock", errors.Join(ErrLockManager, err)).With("tenantId", tenantID)
			mu.Unlock()
			return nil
		}
		outcome, err := t.PushTransaction(ctx, tenantID, tx.ID)
		mu.Lock()
		defer mu.Unlock()
		report.Outcomes[tx.ID] = outcome
		if errors.Is(err, ErrLockManager) {
			fatal = err
		}
		return nil
	})

	log.WithFields(logrus.Fields{"candidates": len(candidates), "outcomes": countOutcomes(report.Outcomes)}).Info("cdr push finished")
	return report, fatal
}

// PushTransaction finalizes one transaction under its lock. It is also the
// manual and end-of-charge path. A lock backend failure matches ErrLockManager.
func (t *CdrPushTask) PushTransaction(ctx context.Context, tenantID, txID string) (PushOutcome, error) {
	log := t.Logger.WithFields(logrus.Fields{"tenantId": tenantID, "transactionId": txID})

	l, err := t.Locker.Acquire(ctx, tenantID, TransactionResource(txID))
	if err != nil {
		return PushFailed, errs.Wrap(errs.CodeInternal, "acquire transaction lock", errors.Join(ErrLockManager, err)).With("transactionId", txID)
	}
	if l == nil {
		log.Debug("transaction locked elsewhere, skipped")
		return PushSkippedLocked, nil
	}
	defer t.release(ctx, l)

	outcome, err := t.finalize(ctx, tenantID, txID, log)
	if err != nil {
		logging.LogError(log, "services", "CdrPushTask.PushTransaction", "finalize roaming transaction", nil, err)
	}
	return outcome, err
}

func (t *CdrPushTask) finalize(ctx context.Context, tenantID, txID string, log logrus.FieldLogger) (PushOutcome, error) {
	tx, err := t.Transactions.Get(ctx, tenantID, txID)
	if err != nil {
		return PushFailed, errs.Wrap(errs.CodeInternal, "load transaction", err).With("transactionId", txID)
	}
	if tx == nil {
		log.Warn("transaction not found")
		return PushSkippedMissing, nil
	}
	// authoritative duplicate guard, the candidate list may be stale
	if tx.HasCdr() {
		return PushSkippedAlreadyPushed, nil
	}

	cs, err := t.Stations.Get(ctx, tenantID, tx.ChargingStationID)
	if err != nil {
		return PushFailed, errs.Wrap(errs.CodeInternal, "load charging station", err).With("stationId", tx.ChargingStationID)
	}
	if cs == nil {
		log.WithField("stationId", tx.ChargingStationID).Warn("charging station not found")
		return PushSkippedMissing, nil
	}
	tag, err := t.Tags.Get(ctx, tenantID, tx.TagID)
	if err != nil {
		return PushFailed, errs.Wrap(errs.CodeInternal, "load tag", err).With("tagId", tx.TagID)
	}
	if tag == nil {
		log.WithField("tagId", tx.TagID).Warn("tag not found")
		return PushSkippedMissing, nil
	}

	if err := t.Finalizer.FinalizeRoamingTransaction(ctx, tx, cs, tag); err != nil {
		return PushFailed, err
	}
	if err := t.Transactions.SaveRoamingData(ctx, tenantID, tx.ID, tx.RoamingData); err != nil {
		return PushFailed, errs.Wrap(errs.CodeInternal, "save roaming data", err).With("transactionId", tx.ID)
	}
	log.Info("cdr pushed")
	return PushPushed, nil
}

func (t *CdrPushTask) release(ctx context.Context, l *lock.Lock) {
	if err := t.Locker.Release(context.WithoutCancel(ctx), l); err != nil {
		logging.LogError(t.Logger, "services", "CdrPushTask.release", "release lock", l.Key(), err)
	}
}

func countOutcomes(m map[string]PushOutcome) string {
	counts := make(map[PushOutcome]int)
	for _, o := range m {
		counts[o]++
	}
	return fmt.Sprint(counts)
}
