package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mselser95/typed-signer/internal/engine"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var metaTxCmd = &cobra.Command{
	Use:   "meta-tx",
	Short: "Sign a gasless meta-transaction",
	Long: `Signs a MetaTransaction for a token that supports executeMetaTransaction
and prints the call a relayer submits.

By default the wrapped call is approve(spender, amount). Pass --calldata to
wrap any other call. The domain name is read from the token's name() unless
--name is given; the nonce is read from the token's getNonce(user).`,
	RunE: runMetaTx,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	metaToken    string
	metaSpender  string
	metaAmount   string
	metaDecimals uint8
	metaCalldata string
	metaName     string
	metaFlags    signingFlags
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(metaTxCmd)

	metaTxCmd.Flags().StringVarP(&metaToken, "token", "t", "", "Token contract address")
	metaTxCmd.Flags().StringVarP(&metaSpender, "spender", "s", "", "Spender to approve")
	metaTxCmd.Flags().StringVarP(&metaAmount, "amount", "a", "", "Decimal approval amount")
	metaTxCmd.Flags().Uint8VarP(&metaDecimals, "decimals", "d", 18, "Token decimals")
	metaTxCmd.Flags().StringVar(&metaCalldata, "calldata", "", "Raw calldata to wrap instead of approve (0x hex)")
	metaTxCmd.Flags().StringVar(&metaName, "name", "", "Domain name (default: token name())")
	metaFlags.register(metaTxCmd)
}

func runMetaTx(cmd *cobra.Command, args []string) error {
	token, err := addressFlag("token", metaToken)
	if err != nil {
		return err
	}

	var calldata []byte
	if metaCalldata != "" {
		calldata, err = hexutil.Decode(metaCalldata)
		if err != nil {
			return fmt.Errorf("--calldata: %w", err)
		}
	}

	req := engine.MetaTxRequest{
		Token:      token,
		Spender:    metaSpender,
		Amount:     metaAmount,
		Decimals:   metaDecimals,
		Calldata:   calldata,
		DomainName: metaName,
	}

	return runSigning(cmd, true, &metaFlags, func(ctx context.Context, e *engine.Engine, sess *signing.Session) (*engine.Signed, error) {
		return e.SignMetaTransaction(ctx, sess, req)
	})
}
