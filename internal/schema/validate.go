package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/mselser95/typed-signer/pkg/types"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidType reports whether t is an EIP-712 atomic/dynamic type or an array of one.
func ValidType(t string) bool {
	t = strings.TrimSuffix(t, "[]")
	switch t {
	case "address", "bool", "string", "bytes":
		return true
	}

	if strings.HasPrefix(t, "bytes") {
		n, err := strconv.Atoi(strings.TrimPrefix(t, "bytes"))
		return err == nil && n >= 1 && n <= 32
	}

	for _, prefix := range []string{"uint", "int"} {
		if strings.HasPrefix(t, prefix) {
			n, err := strconv.Atoi(strings.TrimPrefix(t, prefix))
			return err == nil && n >= 8 && n <= 256 && n%8 == 0
		}
	}

	return false
}

// Validate checks a definition for internal consistency.
func (d *Definition) Validate() error {
	if d.Name == "" || d.Version == "" {
		return invalid("name and version are required")
	}
	if !identifierPattern.MatchString(d.PrimaryType) || d.PrimaryType == DomainType {
		return invalid("primary type %q is not a valid struct name", d.PrimaryType)
	}
	if len(d.Fields) == 0 {
		return invalid("no fields declared")
	}

	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if !identifierPattern.MatchString(f.Name) {
			return invalid("field name %q", f.Name)
		}
		if seen[f.Name] {
			return invalid("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if !ValidType(f.Type) {
			return invalid("field %q has unsupported type %q", f.Name, f.Type)
		}
	}

	if len(d.Domain.Fields()) == 0 {
		return invalid("domain template declares no fields")
	}
	if d.Domain.SaltFromChainID && !d.Domain.Salt {
		return invalid("salt derived from chain id but salt not declared")
	}

	err := d.validateArrayHashes(seen)
	if err != nil {
		return err
	}

	err = d.validateNonce()
	if err != nil {
		return err
	}

	if d.DeadlineField != "" {
		f, ok := d.Field(d.DeadlineField)
		if !ok || !strings.HasPrefix(f.Type, "uint") || strings.HasSuffix(f.Type, "[]") {
			return invalid("deadline field %q must be a declared uint field", d.DeadlineField)
		}
		if d.DefaultValidity <= 0 {
			return invalid("deadline field %q needs a positive default validity", d.DeadlineField)
		}
	}

	if d.IdentityField != "" {
		f, ok := d.Field(d.IdentityField)
		if !ok || f.Type != "address" {
			return invalid("identity field %q must be a declared address field", d.IdentityField)
		}
	}

	return d.validateMethod()
}

func (d *Definition) validateArrayHashes(fields map[string]bool) error {
	sources := make(map[string]bool, len(d.ArrayHashes))
	for _, ah := range d.ArrayHashes {
		f, ok := d.Field(ah.Field)
		if !ok || f.Type != "bytes32" {
			return invalid("array hash target %q must be a declared bytes32 field", ah.Field)
		}
		if ah.Source == "" || fields[ah.Source] || sources[ah.Source] {
			return invalid("array source %q must be unique and distinct from struct fields", ah.Source)
		}
		sources[ah.Source] = true
		if !strings.HasSuffix(ah.Type, "[]") {
			return invalid("array source %q has non-array type %q", ah.Source, ah.Type)
		}
		_, err := abi.NewType(ah.Type, "", nil)
		if err != nil {
			return invalid("array source %q type %q: %v", ah.Source, ah.Type, err)
		}
	}
	return nil
}

func (d *Definition) validateNonce() error {
	f, ok := d.Field(d.Nonce.Field)
	if !ok || f.Type != "uint256" {
		return invalid("nonce field %q must be a declared uint256 field", d.Nonce.Field)
	}

	switch d.Nonce.Strategy {
	case NonceRandom:
		return nil
	case NonceSequential:
		if d.Nonce.CounterMethod == "" {
			return invalid("sequential nonce requires a counter method")
		}
		k, ok := d.Field(d.Nonce.CounterKey)
		if !ok || k.Type != "address" {
			return invalid("counter key %q must be a declared address field", d.Nonce.CounterKey)
		}
		return nil
	default:
		return invalid("unknown nonce strategy %q", d.Nonce.Strategy)
	}
}

func (d *Definition) validateMethod() error {
	if !identifierPattern.MatchString(d.Method.Name) {
		return invalid("method name %q", d.Method.Name)
	}

	var compact, v, r, s bool
	for _, a := range d.Method.Args {
		_, err := abi.NewType(a.Type, "", nil)
		if err != nil {
			return invalid("method arg %q type %q: %v", a.Name, a.Type, err)
		}

		switch a.Source {
		case ArgField:
			if _, ok := d.Field(a.Key); !ok {
				return invalid("method arg %q reads undeclared field %q", a.Name, a.Key)
			}
		case ArgArray:
			found := false
			for _, ah := range d.ArrayHashes {
				if ah.Source == a.Key {
					found = true
				}
			}
			if !found {
				return invalid("method arg %q reads undeclared array %q", a.Name, a.Key)
			}
		case ArgSignature:
			if a.Type != "bytes" {
				return invalid("signature arg %q must be bytes", a.Name)
			}
			compact = true
		case ArgV:
			if a.Type != "uint8" {
				return invalid("v arg %q must be uint8", a.Name)
			}
			v = true
		case ArgR, ArgS:
			if a.Type != "bytes32" {
				return invalid("%s arg %q must be bytes32", a.Source, a.Name)
			}
			if a.Source == ArgR {
				r = true
			} else {
				s = true
			}
		default:
			return invalid("method arg %q has unknown source %q", a.Name, a.Source)
		}
	}

	if !compact && !(v && r && s) {
		return invalid("method %q does not carry the signature", d.Method.Name)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidSchema, fmt.Sprintf(format, args...))
}
