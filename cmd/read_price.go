package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mselser95/typed-signer/pkg/chain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var readPriceCmd = &cobra.Command{
	Use:   "read-price",
	Short: "Read a token price from the aggregator",
	Long: `Reads the stored price for a token from the aggregator contract. With
--raw the full record including the token name is read.`,
	RunE: runReadPrice,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	readAggregator string
	readToken      string
	readRaw        bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(readPriceCmd)

	readPriceCmd.Flags().StringVarP(&readAggregator, "aggregator", "a", "", "Price aggregator contract address")
	readPriceCmd.Flags().StringVarP(&readToken, "token", "t", "", "Token address")
	readPriceCmd.Flags().BoolVar(&readRaw, "raw", false, "Read the full record via getRawPriceData")
}

func runReadPrice(cmd *cobra.Command, args []string) error {
	aggregator, err := addressFlag("aggregator", readAggregator)
	if err != nil {
		return err
	}
	token, err := addressFlag("token", readToken)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	c, logger, err := buildComponents(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
		_ = logger.Sync()
	}()

	data, err := c.Engine.ReadPrice(ctx, aggregator, token, readRaw)
	if err != nil {
		return err
	}

	printPrice(cmd.OutOrStdout(), token.Hex(), data)
	return nil
}

func printPrice(out io.Writer, token string, data *chain.PriceData) {
	fmt.Fprintf(out, "=== Price for %s ===\n", token)
	if data.Name != "" {
		fmt.Fprintf(out, "Name:         %s\n", data.Name)
	}
	fmt.Fprintf(out, "Price:        %s\n", decimal.NewFromBigInt(data.Price, -int32(data.Decimals)).String())
	fmt.Fprintf(out, "Raw:          %s (decimals %d)\n", data.Price, data.Decimals)
	if data.LastUpdated == 0 {
		fmt.Fprintf(out, "Last updated: never\n")
		return
	}
	fmt.Fprintf(out, "Last updated: %d (%s)\n", data.LastUpdated,
		time.Unix(int64(data.LastUpdated), 0).UTC().Format(time.RFC3339))
}
