package services

import (
	"context"
	"errors"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/events"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/payout"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const scanBatchSize = 50

// Narrow repository slices the per-escrow step runs over. Satisfied by
// the pgx repos bound to the step's transaction; tests plug in fakes.
type escrowStore interface {
	RecordDeposit(ctx context.Context, id uuid.UUID, receivedTON string, txHash *string, seenSeqno *int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int) error
}

type escrowEventStore interface {
	ListTxSeen(ctx context.Context, escrowID uuid.UUID) ([]models.EscrowEvent, error)
	Append(ctx context.Context, ev *models.EscrowEvent) error
}

type dealStore interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	UpdateScheduledAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type dealEventStore interface {
	Append(ctx context.Context, ev *models.DealEvent) error
}

// Reconciler polls the ledger for open escrows and advances them through
// deposit detection, confirmation counting and funding. All progress is
// derived from the database on every pass: the dedup set and the ledger
// cursor are rebuilt from tx_seen events, and confirmation depth is
// counted from the persisted observation seqno, so a crashed or
// duplicated run never double-counts a deposit or loses its place.
type Reconciler struct {
	pool            *pgxpool.Pool
	escrowRepo      *repositories.EscrowRepo
	escrowEventRepo *repositories.EscrowEventRepo
	dealRepo        *repositories.DealRepo
	dealEventRepo   *repositories.DealEventRepo
	ledger          LedgerClient
	publisher       events.Publisher
	cfg             *config.Config
	log             *zap.Logger
}

func NewReconciler(
	pool *pgxpool.Pool,
	escrowRepo *repositories.EscrowRepo,
	escrowEventRepo *repositories.EscrowEventRepo,
	dealRepo *repositories.DealRepo,
	dealEventRepo *repositories.DealEventRepo,
	ledger LedgerClient,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *Reconciler {
	return &Reconciler{
		pool:            pool,
		escrowRepo:      escrowRepo,
		escrowEventRepo: escrowEventRepo,
		dealRepo:        dealRepo,
		dealEventRepo:   dealEventRepo,
		ledger:          ledger,
		publisher:       publisher,
		cfg:             cfg,
		log:             log,
	}
}

// ScanEscrows runs one reconciliation pass. Each escrow is processed in
// its own transaction; a failure on one escrow does not block the rest.
func (r *Reconciler) ScanEscrows(ctx context.Context) {
	ids, err := r.escrowRepo.ListScanIDs(ctx, scanBatchSize)
	if err != nil {
		r.log.Error("list escrows for scan", zap.Error(err))
		return
	}

	for _, id := range ids {
		if err := r.scanOne(ctx, id); err != nil {
			r.log.Error("escrow scan failed",
				zap.String("escrow_id", id.String()),
				zap.Error(err))
		}
	}
}

func (r *Reconciler) scanOne(ctx context.Context, escrowID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := r.escrowRepo.WithTx(tx).GetByIDForUpdate(ctx, escrowID)
	if err != nil {
		return err
	}

	funded, received, err := r.reconcileEscrow(ctx,
		r.escrowRepo.WithTx(tx), r.escrowEventRepo.WithTx(tx),
		r.dealRepo.WithTx(tx), r.dealEventRepo.WithTx(tx), e)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// Уведомление уходит только после коммита: откат транзакции не
	// должен оставлять после себя событие о несостоявшемся funding.
	if funded {
		r.log.Info("escrow funded",
			zap.String("escrow_id", e.ID.String()),
			zap.String("deal_id", e.DealID.String()),
			zap.String("received_ton", received.String()))

		_ = r.publisher.Publish(ctx, events.StreamEscrows, events.Event{
			Type: events.EventDealFunded,
			Payload: map[string]any{
				"deal_id":      e.DealID.String(),
				"escrow_id":    e.ID.String(),
				"received_ton": received.String(),
			},
		})
	}
	return nil
}

// reconcileEscrow runs one reconciliation step over an already locked
// escrow: collect new deposits, refresh confirmations, fund when both
// the amount and the depth are there. It reports whether this step
// funded the escrow so the caller can notify after its commit.
func (r *Reconciler) reconcileEscrow(ctx context.Context, escrows escrowStore, escrowEvents escrowEventStore, deals dealStore, dealEvents dealEventStore, e *models.Escrow) (bool, decimal.Decimal, error) {
	if models.IsTerminalEscrowStatus(e.Status) {
		return false, decimal.Zero, nil
	}

	// Восстанавливаем курсор и множество уже учтённых транзакций из
	// журнала. Никакого внешнего состояния у сканера нет.
	seenRows, err := escrowEvents.ListTxSeen(ctx, e.ID)
	if err != nil {
		return false, decimal.Zero, err
	}
	seen, cursorLT := rebuildCursor(seenRows)

	received, err := payout.ParseTON(e.ReceivedTON)
	if err != nil {
		return false, decimal.Zero, err
	}

	incoming, _, err := collectDeposits(ctx, r.ledger, e.DepositAddress, seen, cursorLT)
	if err != nil {
		return false, decimal.Zero, err
	}

	var firstHash *string
	var firstSeqno *int64
	newDeposits := false
	for _, ltx := range incoming {
		lt := ltx.LT
		hash := ltx.Hash
		appendErr := escrowEvents.Append(ctx, &models.EscrowEvent{
			EscrowID: e.ID,
			Kind:     models.EscrowEventKindTxSeen,
			TxHash:   &hash,
			LedgerLT: &lt,
			Payload: map[string]any{
				"amount_nano": ltx.AmountNano,
				"from":        ltx.From,
				"comment":     ltx.Comment,
			},
		})
		if errors.Is(appendErr, repositories.ErrDuplicateTx) {
			continue
		}
		if appendErr != nil {
			return false, decimal.Zero, appendErr
		}

		seen[hash] = struct{}{}
		received = received.Add(payout.FromNano(ltx.AmountNano))
		newDeposits = true
		if firstHash == nil {
			firstHash = &hash
			seqno := int64(ltx.SeenSeqno)
			firstSeqno = &seqno
		}
	}

	if newDeposits {
		if err := escrows.RecordDeposit(ctx, e.ID, received.String(), firstHash, firstSeqno); err != nil {
			return false, decimal.Zero, err
		}
		e.ReceivedTON = received.String()
		if e.DepositTxHash == nil {
			e.DepositTxHash = firstHash
		}
		if e.DepositSeenSeqno == nil {
			e.DepositSeenSeqno = firstSeqno
		}
	}

	if e.Status == models.EscrowStatusAwaitingDeposit && received.IsPositive() {
		if err := r.transition(ctx, escrows, escrowEvents, e, models.EscrowStatusDepositDetected, map[string]any{
			"received_ton": received.String(),
		}); err != nil {
			return false, decimal.Zero, err
		}
	}

	funded := false
	if e.Status == models.EscrowStatusDepositDetected {
		funded, err = r.tryConfirm(ctx, escrows, escrowEvents, deals, dealEvents, e, received)
		if err != nil {
			return false, decimal.Zero, err
		}
	}
	return funded, received, nil
}

// rebuildCursor derives the dedup set and the highest seen logical time
// from recorded tx_seen events.
func rebuildCursor(rows []models.EscrowEvent) (map[string]struct{}, uint64) {
	seen := make(map[string]struct{}, len(rows))
	var cursorLT uint64
	for _, row := range rows {
		if row.TxHash != nil {
			seen[*row.TxHash] = struct{}{}
		}
		if row.LedgerLT != nil && *row.LedgerLT > cursorLT {
			cursorLT = *row.LedgerLT
		}
	}
	return seen, cursorLT
}

// collectDeposits walks the ledger forward from cursorLT and returns the
// incoming transfers not yet in seen, oldest first, together with the
// advanced cursor. The seen set is not modified.
func collectDeposits(ctx context.Context, ledger LedgerClient, addr string, seen map[string]struct{}, cursorLT uint64) ([]*ton.LedgerTx, uint64, error) {
	var out []*ton.LedgerTx
	for {
		ltx, err := ledger.FindIncomingTx(ctx, addr, 1, cursorLT)
		if err != nil {
			return nil, cursorLT, err
		}
		if ltx == nil {
			return out, cursorLT, nil
		}
		cursorLT = ltx.LT
		if _, dup := seen[ltx.Hash]; dup {
			continue
		}
		out = append(out, ltx)
	}
}

func (r *Reconciler) transition(ctx context.Context, escrows escrowStore, escrowEvents escrowEventStore, e *models.Escrow, to string, payload map[string]any) error {
	ev, err := models.ApplyEscrowTransition(e, to, models.SystemActor(), payload)
	if err != nil {
		return err
	}
	ok, err := escrows.UpdateStatus(ctx, e.ID, *ev.FromStatus, e.Status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return escrowEvents.Append(ctx, ev)
}

// tryConfirm refreshes the confirmation count and, once the deposit
// covers the expected amount deeply enough, marks the escrow funded and
// the deal with it. The count is written even while the amount is still
// short: the status endpoint shows it.
func (r *Reconciler) tryConfirm(ctx context.Context, escrows escrowStore, escrowEvents escrowEventStore, deals dealStore, dealEvents dealEventStore, e *models.Escrow, received decimal.Decimal) (bool, error) {
	if e.DepositTxHash == nil || e.DepositSeenSeqno == nil {
		return false, nil
	}

	cur, err := r.ledger.CurrentSeqno(ctx)
	if err != nil {
		return false, err
	}
	conf := 0
	if int64(cur) >= *e.DepositSeenSeqno {
		conf = int(int64(cur)-*e.DepositSeenSeqno) + 1
	}
	if conf != e.Confirmations {
		if err := escrows.UpdateConfirmations(ctx, e.ID, conf); err != nil {
			return false, err
		}
		e.Confirmations = conf
	}

	expected, err := payout.ParseTON(e.ExpectedTON)
	if err != nil {
		return false, err
	}
	if received.LessThan(expected) {
		return false, nil
	}
	if conf < r.cfg.RequiredConfirmations {
		return false, nil
	}

	if err := r.transition(ctx, escrows, escrowEvents, e, models.EscrowStatusFunded, map[string]any{
		"confirmations": conf,
		"tx_hash":       *e.DepositTxHash,
	}); err != nil {
		return false, err
	}
	if err := escrowEvents.Append(ctx, &models.EscrowEvent{
		EscrowID: e.ID,
		Kind:     models.EscrowEventKindConfirmed,
		TxHash:   e.DepositTxHash,
		Payload:  map[string]any{"confirmations": conf},
	}); err != nil {
		return false, err
	}

	if err := r.fundDeal(ctx, deals, dealEvents, e.DealID); err != nil {
		return false, err
	}
	return true, nil
}

// fundDeal marks the deal funded, defaulting the publish time when the
// parties never set one. The funded -> scheduled hop belongs to the
// scheduler worker.
func (r *Reconciler) fundDeal(ctx context.Context, deals dealStore, dealEvents dealEventStore, dealID uuid.UUID) error {
	d, err := deals.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return err
	}

	ev, err := models.ApplyDealAction(d, models.DealActionFund, models.SystemActor(), nil)
	if err != nil {
		return err
	}
	ok, err := deals.UpdateStatus(ctx, d.ID, *ev.FromStatus, d.Status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if err := dealEvents.Append(ctx, ev); err != nil {
		return err
	}

	if d.ScheduledAt == nil {
		at := time.Now().Add(r.cfg.DefaultScheduleDelay)
		if err := deals.UpdateScheduledAt(ctx, d.ID, at); err != nil {
			return err
		}
	}
	return nil
}
