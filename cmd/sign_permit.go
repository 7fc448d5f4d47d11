package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mselser95/typed-signer/internal/engine"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var signPermitCmd = &cobra.Command{
	Use:   "sign-permit <bet|sell|buy|cancel>",
	Short: "Sign a Wager permit",
	Long: `Signs a bet, sell, buy or cancel permit against the Wager contract and
prints the matching *WithPermit call.

Kind-specific fields are passed with --param:
  bet     value, betOn
  sell    shares, price
  buy     listNo, listedOwner
  cancel  listNo

The connected signer is the permit's user; --owner is the address the
permit authorizes. The nonce is read from the contract's counter unless
--nonce is given.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: permitKindNames(),
	RunE:      runSignPermit,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	permitWager  string
	permitOwner  string
	permitParams map[string]string
	permitFlags  signingFlags
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(signPermitCmd)

	signPermitCmd.Flags().StringVarP(&permitWager, "wager", "w", "", "Wager contract address")
	signPermitCmd.Flags().StringVarP(&permitOwner, "owner", "o", "", "Address the permit authorizes")
	signPermitCmd.Flags().StringToStringVar(&permitParams, "param", nil, "Permit field, e.g. --param value=1000 --param betOn=1")
	permitFlags.register(signPermitCmd)
}

func runSignPermit(cmd *cobra.Command, args []string) error {
	kind := strings.ToLower(args[0])
	if _, ok := schema.PermitKinds[kind]; !ok {
		return fmt.Errorf("unknown permit kind %q (want %s)", kind, strings.Join(permitKindNames(), ", "))
	}

	wager, err := addressFlag("wager", permitWager)
	if err != nil {
		return err
	}
	owner, err := addressFlag("owner", permitOwner)
	if err != nil {
		return err
	}
	nonce, err := permitFlags.parseNonce()
	if err != nil {
		return err
	}

	// Sequential nonces are read from the chain.
	needRPC := nonce == nil

	return runSigning(cmd, needRPC, &permitFlags, func(ctx context.Context, e *engine.Engine, sess *signing.Session) (*engine.Signed, error) {
		return e.SignPermit(ctx, sess, engine.PermitRequest{
			Kind:     kind,
			Wager:    wager,
			Owner:    owner.Hex(),
			Params:   permitParams,
			Nonce:    nonce,
			ValidFor: permitFlags.validFor,
		})
	})
}

func permitKindNames() []string {
	names := make([]string, 0, len(schema.PermitKinds))
	for k := range schema.PermitKinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
