package validator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// Verdict is the per-candidate outcome of filtering.
type Verdict string

const (
	VerdictAccept           Verdict = "accept"
	VerdictSkipBlank        Verdict = "skip-blank"
	VerdictSkipDuplicate    Verdict = "skip-duplicate"
	VerdictSkipCooldown     Verdict = "skip-cooldown"
	VerdictRejectOutOfRange Verdict = "reject-out-of-range"
	VerdictRejectInvalid    Verdict = "reject-invalid"
)

// Candidate is one raw, user-supplied batch row.
type Candidate struct {
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
	Name     string `json:"name,omitempty"`
}

// Entry is a validated candidate ready for encoding.
type Entry struct {
	Token    common.Address `json:"token"`
	Amount   *big.Int       `json:"amount"`
	Decimals uint8          `json:"decimals"`
	Name     string         `json:"name"`
}

// EntryVerdict records what happened to candidate Index.
type EntryVerdict struct {
	Index   int     `json:"index"`
	Token   string  `json:"token"`
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}

// Outcome is the full result of one filtering pass.
type Outcome struct {
	Verdicts []EntryVerdict `json:"verdicts"`
	Accepted []Entry        `json:"accepted"`
}

// Summary renders "N of M entries accepted".
func (o *Outcome) Summary() string {
	return fmt.Sprintf("%d of %d entries accepted", len(o.Accepted), len(o.Verdicts))
}

// Count returns how many candidates received verdict v.
func (o *Outcome) Count(v Verdict) int {
	n := 0
	for _, ev := range o.Verdicts {
		if ev.Verdict == v {
			n++
		}
	}
	return n
}

// LastUpdateReader reads an entry's last on-chain update (unix seconds, 0 = never).
type LastUpdateReader interface {
	LastUpdated(ctx context.Context, token common.Address) (uint64, error)
}

// Config holds validator configuration.
type Config struct {
	Cooldown   time.Duration
	AmountBits int
	// FailOpen treats a failed last-update read as "entry is new".
	FailOpen bool
	Logger   *zap.Logger
	Now      func() time.Time
}

// Validator filters candidate entries before anything is signed.
type Validator struct {
	cooldown   time.Duration
	amountBits int
	failOpen   bool
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Validator.
func New(cfg *Config) *Validator {
	bits := cfg.AmountBits
	if bits == 0 {
		bits = 128
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Validator{
		cooldown:   cfg.Cooldown,
		amountBits: bits,
		failOpen:   cfg.FailOpen,
		logger:     cfg.Logger,
		now:        now,
	}
}

// FilterBatch parses, normalizes, deduplicates and cooldown-checks candidates.
// Input errors abort the whole batch; duplicates and cooldown hits are skipped
// and reported in the Outcome. A nil reader disables the cooldown check.
// It never mutates remote state.
func (v *Validator) FilterBatch(ctx context.Context, reader LastUpdateReader, candidates []Candidate) (*Outcome, error) {
	outcome := &Outcome{
		Verdicts: make([]EntryVerdict, 0, len(candidates)),
		Accepted: make([]Entry, 0, len(candidates)),
	}
	seen := make(map[common.Address]int)

	for i, c := range candidates {
		if strings.TrimSpace(c.Token) == "" || strings.TrimSpace(c.Amount) == "" {
			outcome.record(i, c.Token, VerdictSkipBlank, "token or amount missing")
			continue
		}

		amount, err := ParseAmount(c.Amount, c.Decimals, v.amountBits)
		if err != nil {
			verdict := VerdictRejectInvalid
			if errors.Is(err, types.ErrAmountOutOfRange) {
				verdict = VerdictRejectOutOfRange
			}
			return outcome, outcome.reject(i, c.Token, verdict, err)
		}

		token, err := NormalizeAddress(c.Token)
		if err != nil {
			return outcome, outcome.reject(i, c.Token, VerdictRejectInvalid, err)
		}

		if first, dup := seen[token]; dup {
			outcome.record(i, token.Hex(), VerdictSkipDuplicate, fmt.Sprintf("duplicate of entry %d", first))
			continue
		}
		seen[token] = i

		if reader != nil {
			skip, reason := v.coolingDown(ctx, reader, token)
			if skip {
				outcome.record(i, token.Hex(), VerdictSkipCooldown, reason)
				continue
			}
		}

		outcome.record(i, token.Hex(), VerdictAccept, "")
		outcome.Accepted = append(outcome.Accepted, Entry{
			Token:    token,
			Amount:   amount,
			Decimals: c.Decimals,
			Name:     c.Name,
		})
	}

	for _, ev := range outcome.Verdicts {
		BatchVerdictsTotal.WithLabelValues(string(ev.Verdict)).Inc()
		if ev.Verdict != VerdictAccept {
			v.logger.Info("batch-entry-skipped",
				zap.Int("index", ev.Index),
				zap.String("token", ev.Token),
				zap.String("verdict", string(ev.Verdict)),
				zap.String("reason", ev.Reason))
		}
	}

	if len(outcome.Accepted) == 0 {
		return outcome, types.NewError("validate", "", types.ErrNoEligibleEntries)
	}

	v.logger.Debug("batch-filtered", zap.String("summary", outcome.Summary()))
	return outcome, nil
}

// ValidateSingle validates one candidate as a batch of size one.
func (v *Validator) ValidateSingle(ctx context.Context, reader LastUpdateReader, c Candidate) (*Entry, *Outcome, error) {
	outcome, err := v.FilterBatch(ctx, reader, []Candidate{c})
	if err != nil {
		return nil, outcome, err
	}
	return &outcome.Accepted[0], outcome, nil
}

func (v *Validator) coolingDown(ctx context.Context, reader LastUpdateReader, token common.Address) (bool, string) {
	last, err := reader.LastUpdated(ctx, token)
	if err != nil {
		CooldownReadFailuresTotal.Inc()
		v.logger.Warn("cooldown-read-failed",
			zap.String("token", token.Hex()),
			zap.Bool("fail-open", v.failOpen),
			zap.Error(err))
		if v.failOpen {
			return false, ""
		}
		return true, "last update unreadable"
	}

	if last == 0 {
		return false, ""
	}

	elapsed := v.now().Unix() - int64(last)
	if elapsed < int64(v.cooldown/time.Second) {
		return true, fmt.Sprintf("updated %ds ago, cooldown %s", elapsed, v.cooldown)
	}
	return false, ""
}

func (o *Outcome) record(index int, token string, verdict Verdict, reason string) {
	o.Verdicts = append(o.Verdicts, EntryVerdict{
		Index:   index,
		Token:   token,
		Verdict: verdict,
		Reason:  reason,
	})
}

// reject records a batch-aborting verdict and wraps err for the caller.
func (o *Outcome) reject(index int, token string, verdict Verdict, err error) error {
	o.record(index, token, verdict, err.Error())
	BatchVerdictsTotal.WithLabelValues(string(verdict)).Inc()
	return types.NewError("validate", fmt.Sprintf("entry %d", index), err)
}
