package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/mselser95/typed-signer/internal/engine"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/mselser95/typed-signer/internal/validator"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var signPriceCmd = &cobra.Command{
	Use:   "sign-price",
	Short: "Sign a single token price update",
	Long: `Validates one price, signs a PriceSingle message for the aggregator and
prints the updatePriceSigned call ready for submission.

With RPC_URL set, a token updated within COOLDOWN_WINDOW is refused.`,
	RunE: runSignPrice,
}

//nolint:gochecknoglobals // Cobra boilerplate
var signBatchCmd = &cobra.Command{
	Use:   "sign-batch",
	Short: "Sign a batch of token price updates",
	Long: `Filters a JSON file of candidates, signs one PriceBatch message over the
accepted entries and prints the updatePricesSigned call.

The file holds an array of {"token","amount","decimals","name"} objects.
Blank rows, repeated tokens and tokens still cooling down are skipped and
reported.`,
	RunE: runSignBatch,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	priceAggregator string
	priceToken      string
	priceAmount     string
	priceDecimals   uint8
	priceFlags      signingFlags

	batchAggregator string
	batchFile       string
	batchFlags      signingFlags
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(signPriceCmd)
	rootCmd.AddCommand(signBatchCmd)

	signPriceCmd.Flags().StringVarP(&priceAggregator, "aggregator", "a", "", "Price aggregator contract address")
	signPriceCmd.Flags().StringVarP(&priceToken, "token", "t", "", "Token address")
	signPriceCmd.Flags().StringVarP(&priceAmount, "price", "p", "", "Decimal price, e.g. 100.5")
	signPriceCmd.Flags().Uint8VarP(&priceDecimals, "decimals", "d", 8, "Price decimals")
	priceFlags.register(signPriceCmd)

	signBatchCmd.Flags().StringVarP(&batchAggregator, "aggregator", "a", "", "Price aggregator contract address")
	signBatchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON file of candidates")
	batchFlags.register(signBatchCmd)
}

func runSignPrice(cmd *cobra.Command, args []string) error {
	aggregator, err := addressFlag("aggregator", priceAggregator)
	if err != nil {
		return err
	}
	nonce, err := priceFlags.parseNonce()
	if err != nil {
		return err
	}

	req := engine.PriceUpdate{
		Aggregator: aggregator,
		Candidate: validator.Candidate{
			Token:    priceToken,
			Amount:   priceAmount,
			Decimals: priceDecimals,
		},
		Nonce:    nonce,
		ValidFor: priceFlags.validFor,
	}

	return runSigning(cmd, false, &priceFlags, func(ctx context.Context, e *engine.Engine, sess *signing.Session) (*engine.Signed, error) {
		return e.SignPriceUpdate(ctx, sess, req)
	})
}

func runSignBatch(cmd *cobra.Command, args []string) error {
	aggregator, err := addressFlag("aggregator", batchAggregator)
	if err != nil {
		return err
	}
	nonce, err := batchFlags.parseNonce()
	if err != nil {
		return err
	}
	candidates, err := loadCandidates(batchFile)
	if err != nil {
		return err
	}

	req := engine.BatchPriceUpdate{
		Aggregator: aggregator,
		Candidates: candidates,
		Nonce:      nonce,
		ValidFor:   batchFlags.validFor,
	}

	return runSigning(cmd, false, &batchFlags, func(ctx context.Context, e *engine.Engine, sess *signing.Session) (*engine.Signed, error) {
		return e.SignBatchPriceUpdate(ctx, sess, req)
	})
}

func loadCandidates(path string) ([]validator.Candidate, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var candidates []validator.Candidate
	err = json.Unmarshal(raw, &candidates)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return candidates, nil
}
