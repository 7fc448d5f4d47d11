package cmd

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/joho/godotenv"
	"github.com/mselser95/typed-signer/internal/app"
	"github.com/mselser95/typed-signer/internal/engine"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/mselser95/typed-signer/internal/validator"
	"github.com/mselser95/typed-signer/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// commandTimeout bounds a whole CLI flow. Remote signing waits on a human.
const commandTimeout = 5 * time.Minute

// signingFlags are shared by every command that produces a signature.
type signingFlags struct {
	nonce    string
	validFor time.Duration
	submit   bool
}

func (f *signingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.nonce, "nonce", "", "Explicit nonce (default: chosen by the schema's nonce strategy)")
	cmd.Flags().DurationVar(&f.validFor, "valid-for", 0, "Signature validity window (default from config)")
	cmd.Flags().BoolVar(&f.submit, "submit", false, "Send the assembled transaction with the relayer key and wait for the receipt")
}

// buildComponents loads .env and the environment and wires the engine.
func buildComponents(ctx context.Context, needRPC bool) (*app.Components, *zap.Logger, error) {
	err := godotenv.Load()
	if err != nil {
		fmt.Printf("Warning: .env file not found\n")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if needRPC {
		err = cfg.RequireRPC()
		if err != nil {
			return nil, nil, err
		}
	}

	logger, err := config.NewCLILogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}

	return c, logger, nil
}

// runSigning connects a session, runs sign, prints the result and submits it
// when asked.
func runSigning(
	cmd *cobra.Command,
	needRPC bool,
	flags *signingFlags,
	sign func(ctx context.Context, e *engine.Engine, sess *signing.Session) (*engine.Signed, error),
) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	c, logger, err := buildComponents(ctx, needRPC || flags.submit)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
		_ = logger.Sync()
	}()

	out := cmd.OutOrStdout()

	sess, err := c.Engine.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect signer: %w", err)
	}
	fmt.Fprintf(out, "Signer:  %s (chain %s)\n\n", sess.Identity.Hex(), sess.ChainID)

	signed, err := sign(ctx, c.Engine, sess)
	if signed != nil && signed.Outcome != nil {
		printOutcome(out, signed.Outcome)
	}
	if err != nil {
		return err
	}

	printSigned(out, signed)

	if !flags.submit {
		return nil
	}

	if c.Broadcaster != nil {
		fmt.Fprintf(out, "\nSubmitting from relayer %s...\n", c.Broadcaster.From().Hex())
	}
	receipt, err := c.Engine.Submit(ctx, sess, signed)
	if receipt != nil {
		printReceipt(out, receipt)
	}
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

func printSigned(out io.Writer, signed *engine.Signed) {
	cycle := signed.Cycle

	fmt.Fprintf(out, "=== Signed %s v%s ===\n", cycle.Schema, cycle.SchemaVersion)
	fmt.Fprintf(out, "Cycle:      %s\n", cycle.ID)
	fmt.Fprintf(out, "Contract:   %s\n", cycle.Contract().Hex())
	if cycle.Nonce != nil {
		fmt.Fprintf(out, "Nonce:      %s\n", cycle.Nonce)
	}
	if !cycle.Deadline.IsZero() {
		fmt.Fprintf(out, "Deadline:   %d (%s)\n", cycle.Deadline.Unix(), cycle.Deadline.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Digest:     %s\n", cycle.Encoded.Digest.Hex())
	fmt.Fprintf(out, "Signature:  %s\n", cycle.Signature.Hex())
	fmt.Fprintf(out, "  v=%d r=%x s=%x\n", cycle.Signature.V, cycle.Signature.R, cycle.Signature.S)

	fmt.Fprintf(out, "\nCall: %s\n", signed.Payload.Describe())

	calldata, err := signed.Payload.Calldata()
	if err == nil {
		fmt.Fprintf(out, "\nCalldata: 0x%x\n", calldata)
	}
}

func printOutcome(out io.Writer, outcome *validator.Outcome) {
	fmt.Fprintf(out, "Validation: %s\n", outcome.Summary())
	for _, v := range outcome.Verdicts {
		if v.Reason != "" {
			fmt.Fprintf(out, "  [%d] %-8s %s (%s)\n", v.Index, v.Verdict, v.Token, v.Reason)
			continue
		}
		fmt.Fprintf(out, "  [%d] %-8s %s\n", v.Index, v.Verdict, v.Token)
	}
	fmt.Fprintln(out)
}

func printReceipt(out io.Writer, r *engine.Receipt) {
	fmt.Fprintf(out, "Tx:       %s\n", r.TxHash.Hex())
	fmt.Fprintf(out, "Status:   %s\n", r.Status)
	fmt.Fprintf(out, "Gas used: %d\n", r.GasUsed)
}

// addressFlag parses a required address flag.
func addressFlag(name string, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := validator.NormalizeAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

// nonce parses --nonce; empty means the schema picks one.
func (f *signingFlags) parseNonce() (*big.Int, error) {
	if f.nonce == "" {
		return nil, nil
	}
	n, ok := math.ParseBig256(f.nonce)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("--nonce: %q is not a uint256", f.nonce)
	}
	return n, nil
}
