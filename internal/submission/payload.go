package submission

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mselser95/typed-signer/internal/schema"
)

// Payload is the positional argument list for one contract call, built from a
// signed cycle. Args are typed for go-ethereum's ABI packer.
type Payload struct {
	CycleID  string
	Schema   string
	Contract common.Address
	Method   abi.Method
	Names    []string
	Args     []interface{}
}

// Signature returns the method signature, e.g. "updatePriceSigned(address,...)".
func (p *Payload) Signature() string {
	return p.Method.Sig
}

// Calldata packs selector and arguments.
func (p *Payload) Calldata() ([]byte, error) {
	packed, err := p.Method.Inputs.Pack(p.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", p.Method.Sig, err)
	}
	return append(append([]byte{}, p.Method.ID...), packed...), nil
}

// Describe renders the arguments in order for display.
func (p *Payload) Describe() string {
	var sb strings.Builder
	sb.WriteString(p.Method.Sig)
	for i, arg := range p.Args {
		fmt.Fprintf(&sb, "\n  [%d] %s = %s", i, p.Names[i], formatArg(arg))
	}
	return sb.String()
}

func formatArg(v interface{}) string {
	switch a := v.(type) {
	case []byte:
		return hexutil.Encode(a)
	case [32]byte:
		return hexutil.Encode(a[:])
	case common.Address:
		return a.Hex()
	case []common.Address:
		parts := make([]string, len(a))
		for i, addr := range a {
			parts[i] = addr.Hex()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// buildMethod turns a declared method shape into an ABI method.
func buildMethod(shape schema.MethodShape) (abi.Method, error) {
	inputs := make(abi.Arguments, len(shape.Args))
	for i, a := range shape.Args {
		t, err := abi.NewType(a.Type, "", nil)
		if err != nil {
			return abi.Method{}, fmt.Errorf("arg %s: %w", a.Name, err)
		}
		inputs[i] = abi.Argument{Name: a.Name, Type: t}
	}
	return abi.NewMethod(shape.Name, shape.Name, abi.Function, "nonpayable", false, false, inputs, nil), nil
}
