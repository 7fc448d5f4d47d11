package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the registered message kinds",
	Long: `Lists every registered EIP-712 message kind with its primary type,
domain fields, nonce strategy and the contract method that verifies it.`,
	RunE: runSchemas,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(schemasCmd)
}

func runSchemas(cmd *cobra.Command, args []string) error {
	registry := schema.NewRegistry(zap.NewNop())
	err := schema.RegisterDefaults(registry)
	if err != nil {
		return fmt.Errorf("register schemas: %w", err)
	}

	printSchemas(cmd.OutOrStdout(), registry.List())
	return nil
}

func printSchemas(out io.Writer, defs []*schema.Definition) {
	fmt.Fprintf(out, "=== Registered Schemas (%d) ===\n", len(defs))

	for _, def := range defs {
		fields := make([]string, len(def.Fields))
		for i, f := range def.Fields {
			fields[i] = f.Type + " " + f.Name
		}
		domain := make([]string, 0, 5)
		for _, f := range def.Domain.Fields() {
			domain = append(domain, f.Name)
		}

		fmt.Fprintf(out, "\n%s v%s\n", def.Name, def.Version)
		fmt.Fprintf(out, "  Type:     %s(%s)\n", def.PrimaryType, strings.Join(fields, ","))
		fmt.Fprintf(out, "  Domain:   %s\n", strings.Join(domain, ", "))
		fmt.Fprintf(out, "  Nonce:    %s (%s)\n", def.Nonce.Strategy, def.Nonce.Field)
		if def.DeadlineField != "" {
			fmt.Fprintf(out, "  Deadline: %s (default %s)\n", def.DeadlineField, def.DefaultValidity)
		}
		fmt.Fprintf(out, "  Method:   %s\n", def.Method.Signature())
	}
}
