package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonsdk "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

const txBatchSize = 100

// LedgerTx — одна наблюдаемая входящая транзакция. Явная структура вместо
// сырых ответов лайт-сервера: всё, что выше этого слоя, работает только с
// разобранными полями.
type LedgerTx struct {
	Hash       string // hex
	From       string // sender address, friendly form
	AmountNano int64
	LT         uint64 // ledger-time assigned by the chain
	SeenSeqno  uint32 // masterchain seqno at observation, base for confirmations
	Comment    string
	SeenAt     time.Time
}

// ConnectOptions: either an explicit lite server, or auto-discovery from
// the global network config.
type ConnectOptions struct {
	Network        string // mainnet / testnet
	LiteServerHost string
	LiteServerPort int
	LiteServerKey  string
	WalletSeed     []string // 24 words of the custodial hot wallet
}

// Client talks to TON through a lite server pool. It implements both the
// ledger query adapter (FindIncomingTx / CurrentSeqno) and the outbound
// transfer provider (SubmitTransfer) used by the settlement engine.
// Confirmation counting keeps no state here: the observation seqno is
// persisted with the escrow, so a restart changes nothing.
type Client struct {
	api     tonsdk.APIClientWrapped
	hot     *wallet.Wallet
	testnet bool
	log     *zap.Logger
}

func Connect(ctx context.Context, opts ConnectOptions, log *zap.Logger) (*Client, error) {
	pool := liteclient.NewConnectionPool()

	if opts.LiteServerHost != "" && opts.LiteServerKey != "" {
		addrStr := fmt.Sprintf("%s:%d", opts.LiteServerHost, opts.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addrStr))
		if err := pool.AddConnection(ctx, addrStr, opts.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addrStr, err)
		}
	} else {
		var configURL string
		switch strings.ToLower(opts.Network) {
		case "mainnet":
			configURL = "https://ton.org/global.config.json"
		default:
			configURL = "https://ton.org/testnet-global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", opts.Network))
		if err := pool.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := tonsdk.ProofCheckPolicyFast
	if strings.ToLower(opts.Network) == "mainnet" {
		proofPolicy = tonsdk.ProofCheckPolicySecure
	}
	api := tonsdk.NewAPIClient(pool, proofPolicy).WithRetry()

	c := &Client{
		api:     api,
		testnet: strings.ToLower(opts.Network) != "mainnet",
		log:     log,
	}

	if len(opts.WalletSeed) > 0 {
		hot, err := wallet.FromSeed(api, opts.WalletSeed, wallet.V4R2)
		if err != nil {
			return nil, fmt.Errorf("init hot wallet from seed: %w", err)
		}
		c.hot = hot
		log.Info("hot wallet initialized", zap.String("address", hot.WalletAddress().String()))
	}

	return c, nil
}

// FindIncomingTx returns the oldest incoming transfer to addrStr with
// LT strictly greater than sinceLT and amount >= minAmountNano, or nil
// when there is none. Bounced and outgoing-only transactions are skipped.
func (c *Client) FindIncomingTx(ctx context.Context, addrStr string, minAmountNano int64, sinceLT uint64) (*LedgerTx, error) {
	addr, err := address.ParseAddr(addrStr)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", addrStr, err)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}

	account, err := c.api.GetAccount(ctx, block, addr)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 || account.LastTxLT <= sinceLT {
		return nil, nil
	}

	txs, err := c.listSince(ctx, addr, account, sinceLT)
	if err != nil {
		return nil, err
	}

	for _, tx := range txs {
		ltx := incomingTransfer(tx)
		if ltx == nil || ltx.AmountNano < minAmountNano {
			continue
		}
		ltx.SeenSeqno = block.SeqNo
		return ltx, nil
	}
	return nil, nil
}

// CurrentSeqno returns the current masterchain block seqno. Confirmation
// depth is the distance from the persisted observation seqno to here.
func (c *Client) CurrentSeqno(ctx context.Context) (uint32, error) {
	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("get master block: %w", err)
	}
	return block.SeqNo, nil
}

// SubwalletAddress derives the deposit address of a hot-wallet subwallet.
// Returned friendly form is non-bounceable so payments reach the
// sub-account even before it is deployed.
func (c *Client) SubwalletAddress(subwalletID uint32) (raw, friendly string, err error) {
	if c.hot == nil {
		return "", "", fmt.Errorf("hot wallet is not configured")
	}
	sub, err := c.hot.GetSubwallet(subwalletID)
	if err != nil {
		return "", "", fmt.Errorf("derive subwallet %d: %w", subwalletID, err)
	}

	a := sub.WalletAddress()
	raw = FormatRawAddress(a.Workchain(), a.Data())
	friendly, err = FormatFriendlyAddress(a.Workchain(), a.Data(), false, c.testnet)
	if err != nil {
		return "", "", err
	}
	return raw, friendly, nil
}

// SubmitTransfer sends amountNano from the given subwallet and waits for
// the wallet transaction to land. A transaction that produced no outgoing
// message (rejected or no-op) is an error, not a success: the caller must
// never record an inert transfer as a payout.
func (c *Client) SubmitTransfer(ctx context.Context, subwalletID uint32, toAddress string, amountNano int64, comment string) (string, error) {
	if c.hot == nil {
		return "", fmt.Errorf("hot wallet is not configured")
	}
	sub, err := c.hot.GetSubwallet(subwalletID)
	if err != nil {
		return "", fmt.Errorf("derive subwallet %d: %w", subwalletID, err)
	}

	to, err := address.ParseAddr(toAddress)
	if err != nil {
		return "", fmt.Errorf("parse destination %q: %w", toAddress, err)
	}
	to.SetBounce(false)

	body, err := wallet.CreateCommentCell(comment)
	if err != nil {
		return "", fmt.Errorf("build comment: %w", err)
	}

	msg := wallet.SimpleMessage(to, tlb.FromNanoTON(big.NewInt(amountNano)), body)

	tx, _, err := sub.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}

	if tx.IO.Out == nil {
		return "", fmt.Errorf("transfer tx %s produced no outgoing message", hex.EncodeToString(tx.Hash))
	}
	outs, err := tx.IO.Out.ToSlice()
	if err != nil || len(outs) == 0 {
		return "", fmt.Errorf("transfer tx %s produced no outgoing message", hex.EncodeToString(tx.Hash))
	}

	hash := hex.EncodeToString(tx.Hash)
	c.log.Info("outbound transfer executed",
		zap.String("tx_hash", hash),
		zap.Uint32("subwallet_id", subwalletID),
		zap.String("to", toAddress),
		zap.Int64("amount_nano", amountNano),
	)
	return hash, nil
}

// listSince pages the account history backwards until it crosses sinceLT,
// then returns new transactions oldest-first.
func (c *Client) listSince(ctx context.Context, addr *address.Address, account *tlb.Account, sinceLT uint64) ([]*tlb.Transaction, error) {
	var all []*tlb.Transaction

	lt := account.LastTxLT
	hash := account.LastTxHash

	for {
		txs, err := c.api.ListTransactions(ctx, addr, txBatchSize, lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= sinceLT {
				reachedCursor = true
				continue
			}
			all = append(all, tx)
		}

		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(all, func(i, j int) bool { return all[i].LT < all[j].LT })
	return all, nil
}

// incomingTransfer decodes a transaction into a LedgerTx, or nil when it
// carries no usable incoming value (outgoing-only, bounced, zero amount).
func incomingTransfer(tx *tlb.Transaction) *LedgerTx {
	if tx.IO.In == nil {
		return nil
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil {
		return nil
	}
	if inMsg.Bounced {
		return nil
	}
	amount := inMsg.Amount.Nano()
	if amount.Sign() <= 0 || !amount.IsInt64() {
		return nil
	}

	return &LedgerTx{
		Hash:       hex.EncodeToString(tx.Hash),
		From:       inMsg.SrcAddr.String(),
		AmountNano: amount.Int64(),
		LT:         tx.LT,
		Comment:    extractComment(inMsg),
		SeenAt:     time.Unix(int64(tx.Now), 0),
	}
}

// extractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func extractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
