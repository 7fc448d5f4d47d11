package submission

import (
	"fmt"
	"time"

	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/internal/schema"
	"github.com/mselser95/typed-signer/internal/signing"
	"github.com/mselser95/typed-signer/pkg/types"
	"go.uber.org/zap"
)

// Assembler maps a signed cycle onto its target method's parameter order.
type Assembler struct {
	registry *schema.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an Assembler. now defaults to time.Now.
func New(registry *schema.Registry, logger *zap.Logger, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{registry: registry, logger: logger, now: now}
}

// Assemble builds the call payload for cycle. It refuses incomplete
// signatures and cycles whose deadline has already passed.
func (a *Assembler) Assemble(cycle *signing.Cycle) (*Payload, error) {
	if cycle == nil {
		return nil, types.NewError("assemble", "", fmt.Errorf("%w: no signed cycle", types.ErrIncompleteSignature))
	}

	def, err := a.registry.GetVersion(cycle.Schema, cycle.SchemaVersion)
	if err != nil {
		return nil, types.NewError("assemble", cycle.Schema, err)
	}

	if !cycle.Signature.Complete() {
		AssembleRejectionsTotal.WithLabelValues("incomplete").Inc()
		return nil, types.NewError("assemble", "signature", types.ErrIncompleteSignature)
	}

	if !cycle.Deadline.IsZero() && !a.now().Before(cycle.Deadline) {
		AssembleRejectionsTotal.WithLabelValues("stale").Inc()
		return nil, types.NewError("assemble", def.DeadlineField,
			fmt.Errorf("%w: deadline %s passed", types.ErrStaleSignature, cycle.Deadline.UTC().Format(time.RFC3339)))
	}

	method, err := buildMethod(def.Method)
	if err != nil {
		return nil, types.NewError("assemble", def.Method.Name, fmt.Errorf("%w: %v", types.ErrInvalidSchema, err))
	}

	payload := &Payload{
		CycleID:  cycle.ID,
		Schema:   def.Name,
		Contract: cycle.Contract(),
		Method:   method,
		Names:    make([]string, len(def.Method.Args)),
		Args:     make([]interface{}, len(def.Method.Args)),
	}

	for i, arg := range def.Method.Args {
		raw, err := source(arg, cycle)
		if err != nil {
			return nil, types.NewError("assemble", arg.Name, err)
		}
		v, err := encoder.ABIValue(method.Inputs[i].Type, raw)
		if err != nil {
			return nil, types.NewError("assemble", arg.Name, fmt.Errorf("%w: %v", types.ErrFieldTypeMismatch, err))
		}
		payload.Names[i] = arg.Name
		payload.Args[i] = v
	}

	a.logger.Debug("payload-assembled",
		zap.String("cycle-id", cycle.ID),
		zap.String("method", method.Sig),
		zap.String("contract", payload.Contract.Hex()))

	return payload, nil
}

func source(arg schema.Arg, cycle *signing.Cycle) (interface{}, error) {
	sig := cycle.Signature
	switch arg.Source {
	case schema.ArgField, schema.ArgArray:
		v, ok := cycle.Message[arg.Key]
		if !ok {
			return nil, fmt.Errorf("%w: message has no %q", types.ErrFieldTypeMismatch, arg.Key)
		}
		return v, nil
	case schema.ArgSignature:
		return sig.Bytes(), nil
	case schema.ArgV:
		return sig.V, nil
	case schema.ArgR:
		return sig.R, nil
	case schema.ArgS:
		return sig.S, nil
	default:
		return nil, fmt.Errorf("%w: unknown argument source %q", types.ErrInvalidSchema, arg.Source)
	}
}
