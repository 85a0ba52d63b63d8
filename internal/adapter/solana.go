package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/wallet-intelligence/internal/config"
	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/retry"
	"github.com/wallet-intelligence/internal/types"
)

// Known program IDs used for DeFi classification. Interaction with any of
// these counts toward the wallet's protocol usage.
const (
	programRaydiumAMM    = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	programOrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	programJupiterV6     = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	programOpenBook      = "srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX"
	programMarinade      = "MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD"
	programStake         = "Stake11111111111111111111111111111111111111"
	programSolend        = "So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo"
	programMarginFi      = "MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA"
)

var dexPrograms = map[string]bool{
	programRaydiumAMM:    true,
	programOrcaWhirlpool: true,
	programJupiterV6:     true,
	programOpenBook:      true,
}

var lpPrograms = map[string]bool{
	programRaydiumAMM:    true,
	programOrcaWhirlpool: true,
}

var stakingPrograms = map[string]bool{
	programMarinade: true,
	programStake:    true,
}

var lendingPrograms = map[string]bool{
	programSolend:   true,
	programMarginFi: true,
}

// Well-known token mints, for labeling top-token shares
var knownMints = map[string]string{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"So11111111111111111111111111111111111111112":  "SOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
}

const lamportsPerSOL = 1_000_000_000

// Transactions inspected in detail per snapshot. Full-window inspection
// would cost one getTransaction per signature, which free RPC tiers
// cannot sustain.
const txDetailSampleSize = 25

// SolanaProvider gathers wallet snapshots from a Solana RPC node
type SolanaProvider struct {
	client *rpc.Client
	cfg    *config.SolanaConfig
}

// NewSolanaProvider creates a new Solana snapshot provider
func NewSolanaProvider(cfg *config.SolanaConfig) *SolanaProvider {
	return &SolanaProvider{
		client: rpc.New(cfg.RPCURL),
		cfg:    cfg,
	}
}

// GatherSnapshot collects balance, token holdings, and transaction history
// for a wallet and derives the aggregates the scorer consumes.
func (p *SolanaProvider) GatherSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, &types.ServiceError{
			Code:    "INVALID_WALLET_ADDRESS",
			Message: fmt.Sprintf("invalid wallet address: %s", address),
			Details: map[string]any{"address": address},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	logger := logging.FromContext(ctx).WithField("wallet", address)

	snapshot := &types.WalletSnapshot{
		Address:    address,
		GatheredAt: time.Now().UTC(),
	}

	// SOL balance
	var balance *rpc.GetBalanceResult
	err = retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
		var rpcErr error
		balance, rpcErr = p.client.GetBalance(ctx, pubkey, rpc.CommitmentFinalized)
		return rpcErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance for %s: %w", address, err)
	}
	snapshot.BalanceSOL = float64(balance.Value) / lamportsPerSOL

	// Token holdings
	if err := p.gatherTokenAccounts(ctx, pubkey, snapshot); err != nil {
		// Tokens are non-fatal; score on what we have
		logger.WithError(err).Warn("failed to fetch token accounts")
	}

	// Transaction history
	if err := p.gatherSignatures(ctx, pubkey, snapshot); err != nil {
		return nil, fmt.Errorf("failed to fetch signatures for %s: %w", address, err)
	}

	snapshot.RiskIndicators = deriveRiskIndicators(snapshot)

	logger.WithFields(map[string]interface{}{
		"balanceSol": snapshot.BalanceSOL,
		"txCount":    snapshot.TxCount,
		"tokenCount": snapshot.TokenCount,
	}).Debug("gathered wallet snapshot")

	return snapshot, nil
}

// parsedTokenAccount mirrors the jsonParsed spl-token account layout
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string   `json:"amount"`
				Decimals int      `json:"decimals"`
				UIAmount *float64 `json:"uiAmount"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func (p *SolanaProvider) gatherTokenAccounts(ctx context.Context, pubkey solana.PublicKey, snapshot *types.WalletSnapshot) error {
	var result *rpc.GetTokenAccountsResult
	err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
		var rpcErr error
		result, rpcErr = p.client.GetTokenAccountsByOwner(ctx, pubkey,
			&rpc.GetTokenAccountsConfig{
				ProgramId: solana.TokenProgramID.ToPointer(),
			},
			&rpc.GetTokenAccountsOpts{
				Encoding: solana.EncodingJSONParsed,
			},
		)
		return rpcErr
	})
	if err != nil {
		return err
	}

	type holding struct {
		mint   string
		amount float64
	}
	var holdings []holding
	var totalAmount float64

	for _, account := range result.Value {
		raw := account.Account.Data.GetRawJSON()
		var parsed parsedTokenAccount
		if err := json.Unmarshal(raw, &parsed); err != nil {
			continue
		}

		info := parsed.Parsed.Info
		amount := 0.0
		if info.TokenAmount.UIAmount != nil {
			amount = *info.TokenAmount.UIAmount
		}
		if amount == 0 {
			continue
		}

		// Single-unit zero-decimal holdings are treated as NFTs
		if info.TokenAmount.Decimals == 0 && info.TokenAmount.Amount == "1" {
			snapshot.NFTCount++
			continue
		}

		snapshot.TokenCount++
		holdings = append(holdings, holding{mint: info.Mint, amount: amount})
		totalAmount += amount
	}

	if totalAmount <= 0 {
		return nil
	}

	// Top tokens by share of total holdings. Unit-amount share is a crude
	// proxy for value share, but it is deterministic and needs no pricing
	// dependency.
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].amount > holdings[j].amount
	})

	top := p.cfg.TopTokenCount
	if top <= 0 {
		top = 5
	}
	if len(holdings) < top {
		top = len(holdings)
	}

	for _, h := range holdings[:top] {
		symbol := knownMints[h.mint]
		if symbol == "" {
			symbol = shortMint(h.mint)
		}
		snapshot.TopTokens = append(snapshot.TopTokens, types.TokenShare{
			Mint:    h.mint,
			Symbol:  symbol,
			Percent: h.amount / totalAmount * 100,
		})
	}

	return nil
}

func (p *SolanaProvider) gatherSignatures(ctx context.Context, pubkey solana.PublicKey, snapshot *types.WalletSnapshot) error {
	limit := p.cfg.SignatureWindow
	if limit <= 0 {
		limit = 1000
	}

	var sigs []*rpc.TransactionSignature
	err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
		var rpcErr error
		sigs, rpcErr = p.client.GetSignaturesForAddressWithOpts(ctx, pubkey,
			&rpc.GetSignaturesForAddressOpts{
				Limit:      &limit,
				Commitment: rpc.CommitmentFinalized,
			},
		)
		return rpcErr
	})
	if err != nil {
		return err
	}

	snapshot.TxCount = int64(len(sigs))
	if len(sigs) == 0 {
		return nil
	}

	now := time.Now()
	cutoff30 := now.AddDate(0, 0, -30)
	successes := 0
	var oldest time.Time

	for _, sig := range sigs {
		if sig.Err == nil {
			successes++
		}
		if sig.BlockTime == nil {
			continue
		}
		ts := sig.BlockTime.Time()
		if ts.After(cutoff30) {
			snapshot.TxLast30Days++
		}
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}

	snapshot.SuccessRate = float64(successes) / float64(len(sigs))
	if !oldest.IsZero() {
		snapshot.AccountAgeDays = int(now.Sub(oldest).Hours() / 24)
	}

	p.inspectTransactions(ctx, pubkey, sigs, snapshot)
	return nil
}

// inspectTransactions samples recent transactions and classifies the
// programs they touch. Failures here degrade the snapshot rather than
// failing it: DeFi flags and counterparties stay at zero.
func (p *SolanaProvider) inspectTransactions(ctx context.Context, pubkey solana.PublicKey, sigs []*rpc.TransactionSignature, snapshot *types.WalletSnapshot) {
	logger := logging.FromContext(ctx)

	sample := sigs
	if len(sample) > txDetailSampleSize {
		sample = sample[:txDetailSampleSize]
	}

	maxVersion := uint64(0)
	dexSeen := make(map[string]bool)
	protocolsSeen := make(map[string]bool)
	counterparties := make(map[string]bool)

	for _, sig := range sample {
		if sig.Err != nil {
			continue
		}

		out, err := p.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil || out == nil || out.Transaction == nil {
			logger.WithError(err).Debug("skipping transaction detail")
			continue
		}

		tx, err := out.Transaction.GetTransaction()
		if err != nil || tx == nil {
			continue
		}

		programIdx := make(map[int]bool)
		for _, inst := range tx.Message.Instructions {
			programIdx[int(inst.ProgramIDIndex)] = true
		}

		for i, key := range tx.Message.AccountKeys {
			keyStr := key.String()
			if programIdx[i] {
				if dexPrograms[keyStr] {
					dexSeen[keyStr] = true
				}
				if dexPrograms[keyStr] || lpPrograms[keyStr] || stakingPrograms[keyStr] || lendingPrograms[keyStr] {
					protocolsSeen[keyStr] = true
				}
				if lpPrograms[keyStr] {
					snapshot.DeFi.LiquidityProviding = true
				}
				if stakingPrograms[keyStr] {
					snapshot.DeFi.Staking = true
				}
				if lendingPrograms[keyStr] {
					snapshot.DeFi.Lending = true
				}
			} else if !key.Equals(pubkey) {
				counterparties[keyStr] = true
			}
		}
	}

	snapshot.DeFi.DexCount = len(dexSeen)
	snapshot.DeFi.ProtocolsUsed = len(protocolsSeen)
	snapshot.UniqueCounterparties = len(counterparties)
}

// deriveRiskIndicators flags suspicious patterns in the snapshot
func deriveRiskIndicators(s *types.WalletSnapshot) []string {
	var indicators []string

	if s.TxCount == 0 {
		indicators = append(indicators, "no_activity")
	}
	if s.TxCount > 0 && s.SuccessRate < 0.5 {
		indicators = append(indicators, "high_failure_rate")
	}
	if s.AccountAgeDays > 0 && s.AccountAgeDays < 7 {
		indicators = append(indicators, "new_account")
	}
	if s.BalanceSOL > 0 && s.BalanceSOL < 0.001 {
		indicators = append(indicators, "dust_balance")
	}
	if s.AccountAgeDays > 90 && s.TxCount > 100 && s.TxLast30Days > int(s.TxCount)*4/5 {
		indicators = append(indicators, "burst_activity")
	}

	return indicators
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
