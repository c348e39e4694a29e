package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/models"
	"github.com/Cuttlas90/ads-project-sub000/internal/payout"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeLedger serves a fixed ordered list of incoming transfers and a
// settable masterchain seqno.
type fakeLedger struct {
	txs   []*ton.LedgerTx
	seqno uint32
}

func (f *fakeLedger) FindIncomingTx(_ context.Context, _ string, minAmountNano int64, sinceLT uint64) (*ton.LedgerTx, error) {
	sort.Slice(f.txs, func(i, j int) bool { return f.txs[i].LT < f.txs[j].LT })
	for _, tx := range f.txs {
		if tx.LT > sinceLT && tx.AmountNano >= minAmountNano {
			return tx, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) CurrentSeqno(context.Context) (uint32, error)    { return f.seqno, nil }
func (f *fakeLedger) SubwalletAddress(uint32) (string, string, error) { return "", "", nil }
func (f *fakeLedger) SubmitTransfer(context.Context, uint32, string, int64, string) (string, error) {
	return "", nil
}

func seenRows(hashes []string, lts []uint64) []models.EscrowEvent {
	rows := make([]models.EscrowEvent, len(hashes))
	for i := range hashes {
		h, lt := hashes[i], lts[i]
		rows[i] = models.EscrowEvent{
			Kind:     models.EscrowEventKindTxSeen,
			TxHash:   &h,
			LedgerLT: &lt,
		}
	}
	return rows
}

func TestRebuildCursor(t *testing.T) {
	tests := []struct {
		name     string
		hashes   []string
		lts      []uint64
		wantSeen int
		wantLT   uint64
	}{
		{"empty", nil, nil, 0, 0},
		{"single", []string{"a"}, []uint64{100}, 1, 100},
		{"out of order", []string{"a", "b", "c"}, []uint64{300, 100, 200}, 3, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, lt := rebuildCursor(seenRows(tt.hashes, tt.lts))
			if len(seen) != tt.wantSeen {
				t.Errorf("seen size = %d, want %d", len(seen), tt.wantSeen)
			}
			if lt != tt.wantLT {
				t.Errorf("cursor LT = %d, want %d", lt, tt.wantLT)
			}
		})
	}
}

func TestCollectDeposits_TwoPartialPayments(t *testing.T) {
	ledger := &fakeLedger{txs: []*ton.LedgerTx{
		{Hash: "tx1", AmountNano: 5_000_000_000, LT: 100},
		{Hash: "tx2", AmountNano: 5_000_000_000, LT: 200},
	}}

	got, cursor, err := collectDeposits(context.Background(), ledger, "0:00", map[string]struct{}{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transfers, want 2", len(got))
	}
	if got[0].Hash != "tx1" || got[1].Hash != "tx2" {
		t.Errorf("wrong order: %s, %s", got[0].Hash, got[1].Hash)
	}
	if cursor != 200 {
		t.Errorf("cursor = %d, want 200", cursor)
	}
}

// A second pass over the same ledger, with the first pass's observations
// recorded, must find nothing new no matter how it is repeated.
func TestCollectDeposits_Idempotent(t *testing.T) {
	ledger := &fakeLedger{txs: []*ton.LedgerTx{
		{Hash: "tx1", AmountNano: 5_000_000_000, LT: 100},
		{Hash: "tx2", AmountNano: 5_000_000_000, LT: 200},
	}}

	first, cursor, err := collectDeposits(context.Background(), ledger, "0:00", map[string]struct{}{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("first pass: got %d transfers, want 2", len(first))
	}

	seen, lt := rebuildCursor(seenRows([]string{"tx1", "tx2"}, []uint64{100, 200}))
	if lt != cursor {
		t.Fatalf("rebuilt cursor %d differs from live cursor %d", lt, cursor)
	}

	for i := 0; i < 3; i++ {
		again, _, err := collectDeposits(context.Background(), ledger, "0:00", seen, lt)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != 0 {
			t.Fatalf("pass %d re-counted %d transfers", i+2, len(again))
		}
	}
}

// Cursor at zero but hashes already recorded: replays from the dedup set
// are skipped even when the logical-time cursor is stale.
func TestCollectDeposits_SkipsSeenHashes(t *testing.T) {
	ledger := &fakeLedger{txs: []*ton.LedgerTx{
		{Hash: "tx1", AmountNano: 5_000_000_000, LT: 100},
		{Hash: "tx2", AmountNano: 3_000_000_000, LT: 200},
	}}

	seen := map[string]struct{}{"tx1": {}}
	got, cursor, err := collectDeposits(context.Background(), ledger, "0:00", seen, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Hash != "tx2" {
		t.Fatalf("got %v, want only tx2", got)
	}
	if cursor != 200 {
		t.Errorf("cursor = %d, want 200", cursor)
	}
}

// In-memory store fakes mirroring the pg repos' semantics: CAS status
// updates, COALESCE on first-deposit columns, unique tx_seen hashes.

type fakeEscrowStore struct {
	status           string
	receivedTON      string
	depositTxHash    *string
	depositSeenSeqno *int64
	confirmations    int
}

func (f *fakeEscrowStore) RecordDeposit(_ context.Context, _ uuid.UUID, receivedTON string, txHash *string, seenSeqno *int64) error {
	f.receivedTON = receivedTON
	if f.depositTxHash == nil {
		f.depositTxHash = txHash
	}
	if f.depositSeenSeqno == nil {
		f.depositSeenSeqno = seenSeqno
	}
	return nil
}

func (f *fakeEscrowStore) UpdateStatus(_ context.Context, _ uuid.UUID, from, to string) (bool, error) {
	if f.status != from {
		return false, nil
	}
	f.status = to
	return true, nil
}

func (f *fakeEscrowStore) UpdateConfirmations(_ context.Context, _ uuid.UUID, confirmations int) error {
	f.confirmations = confirmations
	return nil
}

// snapshot rebuilds the escrow row the way GetByIDForUpdate would return
// it at the start of a pass.
func (f *fakeEscrowStore) snapshot(id, dealID uuid.UUID, expectedTON string) *models.Escrow {
	return &models.Escrow{
		ID:               id,
		DealID:           dealID,
		Status:           f.status,
		DepositAddress:   "0:00",
		ExpectedTON:      expectedTON,
		ReceivedTON:      f.receivedTON,
		DepositTxHash:    f.depositTxHash,
		DepositSeenSeqno: f.depositSeenSeqno,
		Confirmations:    f.confirmations,
		FeePercent:       "5.0",
	}
}

type fakeEscrowEvents struct {
	rows []models.EscrowEvent
}

func (f *fakeEscrowEvents) ListTxSeen(_ context.Context, _ uuid.UUID) ([]models.EscrowEvent, error) {
	var out []models.EscrowEvent
	for _, row := range f.rows {
		if row.Kind == models.EscrowEventKindTxSeen {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeEscrowEvents) Append(_ context.Context, ev *models.EscrowEvent) error {
	if ev.Kind == models.EscrowEventKindTxSeen && ev.TxHash != nil {
		for _, row := range f.rows {
			if row.Kind == models.EscrowEventKindTxSeen && row.TxHash != nil && *row.TxHash == *ev.TxHash {
				return repositories.ErrDuplicateTx
			}
		}
	}
	f.rows = append(f.rows, *ev)
	return nil
}

func (f *fakeEscrowEvents) countKind(kind string) int {
	n := 0
	for _, row := range f.rows {
		if row.Kind == kind {
			n++
		}
	}
	return n
}

type fakeDealStore struct {
	dealID      uuid.UUID
	status      string
	scheduledAt *time.Time
}

func (f *fakeDealStore) GetByIDForUpdate(_ context.Context, _ uuid.UUID) (*models.Deal, error) {
	return &models.Deal{ID: f.dealID, Status: f.status, ScheduledAt: f.scheduledAt}, nil
}

func (f *fakeDealStore) UpdateStatus(_ context.Context, _ uuid.UUID, from, to string) (bool, error) {
	if f.status != from {
		return false, nil
	}
	f.status = to
	return true, nil
}

func (f *fakeDealStore) UpdateScheduledAt(_ context.Context, _ uuid.UUID, at time.Time) error {
	f.scheduledAt = &at
	return nil
}

type fakeDealEvents struct {
	rows []models.DealEvent
}

func (f *fakeDealEvents) Append(_ context.Context, ev *models.DealEvent) error {
	f.rows = append(f.rows, *ev)
	return nil
}

// Full funding path over two partial payments: the escrow reaches
// deposit_detected as soon as money lands, shows a live confirmation
// count while the amount is still short of nothing but depth, funds
// exactly once when the chain is deep enough, and later passes over the
// terminal escrow stay silent.
func TestReconcileEscrow_TwoPaymentFunding(t *testing.T) {
	ledger := &fakeLedger{
		seqno: 500,
		txs: []*ton.LedgerTx{
			{Hash: "tx1", AmountNano: 5_000_000_000, LT: 100, SeenSeqno: 500},
		},
	}
	r := &Reconciler{
		ledger: ledger,
		cfg:    &config.Config{RequiredConfirmations: 3, DefaultScheduleDelay: time.Hour},
		log:    zap.NewNop(),
	}

	escrowID, dealID := uuid.New(), uuid.New()
	escrows := &fakeEscrowStore{status: models.EscrowStatusAwaitingDeposit, receivedTON: "0"}
	escrowEvents := &fakeEscrowEvents{}
	deals := &fakeDealStore{dealID: dealID, status: models.DealStatusCreativeApproved}
	dealEvents := &fakeDealEvents{}

	run := func() bool {
		t.Helper()
		e := escrows.snapshot(escrowID, dealID, "10.00")
		funded, _, err := r.reconcileEscrow(context.Background(), escrows, escrowEvents, deals, dealEvents, e)
		if err != nil {
			t.Fatal(err)
		}
		return funded
	}

	received := func() string {
		t.Helper()
		d, err := payout.ParseTON(escrows.receivedTON)
		if err != nil {
			t.Fatal(err)
		}
		return d.String()
	}

	// Pass 1: half the amount is in. Detected, not funded, and the
	// confirmation count is already visible.
	if run() {
		t.Fatal("funded on a partial deposit")
	}
	if escrows.status != models.EscrowStatusDepositDetected {
		t.Fatalf("status = %s, want deposit_detected", escrows.status)
	}
	if got := received(); got != "5" {
		t.Errorf("received = %s, want 5", got)
	}
	if escrows.confirmations != 1 {
		t.Errorf("confirmations = %d, want 1 on a partial deposit", escrows.confirmations)
	}
	if escrows.depositSeenSeqno == nil || *escrows.depositSeenSeqno != 500 {
		t.Fatalf("deposit seen seqno = %v, want 500", escrows.depositSeenSeqno)
	}

	// Pass 2: second transfer covers the amount, but the chain has not
	// moved, so the depth is still one block.
	ledger.txs = append(ledger.txs, &ton.LedgerTx{Hash: "tx2", AmountNano: 5_000_000_000, LT: 200, SeenSeqno: 500})
	if run() {
		t.Fatal("funded below the required confirmation depth")
	}
	if got := received(); got != "10" {
		t.Errorf("received = %s, want 10", got)
	}
	if escrows.status != models.EscrowStatusDepositDetected {
		t.Fatalf("status = %s, want deposit_detected", escrows.status)
	}

	// Pass 3: chain advanced two blocks past the observation, depth 3.
	ledger.seqno = 502
	if !run() {
		t.Fatal("not funded at the required depth")
	}
	if escrows.status != models.EscrowStatusFunded {
		t.Fatalf("status = %s, want funded", escrows.status)
	}
	if escrows.confirmations != 3 {
		t.Errorf("confirmations = %d, want 3", escrows.confirmations)
	}
	if deals.status != models.DealStatusFunded {
		t.Fatalf("deal status = %s, want funded", deals.status)
	}
	if deals.scheduledAt == nil {
		t.Error("scheduled_at not defaulted on funding")
	}
	if n := escrowEvents.countKind(models.EscrowEventKindTxSeen); n != 2 {
		t.Errorf("tx_seen events = %d, want 2", n)
	}
	if n := escrowEvents.countKind(models.EscrowEventKindConfirmed); n != 1 {
		t.Errorf("confirmed events = %d, want 1", n)
	}

	// Pass 4: terminal escrow. No re-fund, no new events, no second
	// funded report for the publisher.
	evBefore, dealEvBefore := len(escrowEvents.rows), len(dealEvents.rows)
	if run() {
		t.Fatal("terminal escrow reported funded again")
	}
	if len(escrowEvents.rows) != evBefore || len(dealEvents.rows) != dealEvBefore {
		t.Error("pass over a terminal escrow appended events")
	}
	if deals.status != models.DealStatusFunded {
		t.Errorf("deal status changed to %s after funding", deals.status)
	}
}
