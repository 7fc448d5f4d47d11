package schema

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DomainType is the EIP-712 name of the domain struct.
const DomainType = "EIP712Domain"

// NonceStrategy names how a schema's replay-protection nonce is sourced.
type NonceStrategy string

const (
	// NonceRandom draws a fresh 256-bit value; the contract tracks used nonces as a set.
	NonceRandom NonceStrategy = "random"
	// NonceSequential reads the contract's per-account counter.
	NonceSequential NonceStrategy = "sequential"
)

// Field is one (name, EIP-712 type) pair of a struct type.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// DomainTemplate declares which domain fields participate. Values that vary
// per network or contract are supplied with each request.
type DomainTemplate struct {
	Name              string `json:"name,omitempty"`
	Version           string `json:"version,omitempty"`
	ChainID           bool   `json:"chainId"`
	VerifyingContract bool   `json:"verifyingContract"`
	Salt              bool   `json:"salt"`

	// SaltFromChainID derives the salt as the chain id left-padded to 32 bytes.
	SaltFromChainID bool `json:"saltFromChainId,omitempty"`
	// NameFromContract takes the domain name from the verifying contract's name().
	NameFromContract bool `json:"nameFromContract,omitempty"`
}

// Fields returns the EIP712Domain field list in canonical order.
func (t DomainTemplate) Fields() []Field {
	fields := make([]Field, 0, 5)
	if t.Name != "" || t.NameFromContract {
		fields = append(fields, Field{Name: "name", Type: "string"})
	}
	if t.Version != "" {
		fields = append(fields, Field{Name: "version", Type: "string"})
	}
	if t.ChainID {
		fields = append(fields, Field{Name: "chainId", Type: "uint256"})
	}
	if t.VerifyingContract {
		fields = append(fields, Field{Name: "verifyingContract", Type: "address"})
	}
	if t.Salt {
		fields = append(fields, Field{Name: "salt", Type: "bytes32"})
	}
	return fields
}

// Domain holds the request-time domain values.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
	Salt              *common.Hash
}

// Message maps field (or array source) names to values.
type Message map[string]interface{}

// Clone returns a shallow copy so a cycle never shares its map with the caller.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ArrayHash binds a bytes32 struct field to keccak256(abi.encode(array)) of a
// raw array carried in the message under Source.
type ArrayHash struct {
	Field  string `json:"field"`
	Source string `json:"source"`
	Type   string `json:"type"` // ABI array type, e.g. "address[]"
}

// ArgSource tells the assembler where a method argument comes from.
type ArgSource string

const (
	ArgField     ArgSource = "field"
	ArgArray     ArgSource = "array"
	ArgSignature ArgSource = "signature"
	ArgV         ArgSource = "v"
	ArgR         ArgSource = "r"
	ArgS         ArgSource = "s"
)

// Arg is one positional parameter of a target contract method.
type Arg struct {
	Name   string    `json:"name"`
	Type   string    `json:"type"` // ABI type
	Source ArgSource `json:"source"`
	Key    string    `json:"key,omitempty"` // message field or array source
}

// MethodShape is the target method's declared parameter order.
type MethodShape struct {
	Name string `json:"name"`
	Args []Arg  `json:"args"`
}

// Signature renders the canonical method signature, e.g. "f(address,uint256)".
func (m MethodShape) Signature() string {
	types := make([]string, len(m.Args))
	for i, a := range m.Args {
		types[i] = a.Type
	}
	return m.Name + "(" + strings.Join(types, ",") + ")"
}

// NoncePolicy declares the nonce field and how it is filled.
type NoncePolicy struct {
	Strategy NonceStrategy `json:"strategy"`
	Field    string        `json:"field"`
	// CounterMethod is the view method returning the next sequential nonce,
	// called with the address held in CounterKey.
	CounterMethod string `json:"counterMethod,omitempty"`
	CounterKey    string `json:"counterKey,omitempty"`
}

// Definition is an immutable, registered EIP-712 message kind.
type Definition struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	PrimaryType string         `json:"primaryType"`
	Fields      []Field        `json:"fields"`
	Domain      DomainTemplate `json:"domain"`
	ArrayHashes []ArrayHash    `json:"arrayHashes,omitempty"`
	Nonce       NoncePolicy    `json:"nonce"`

	DeadlineField   string        `json:"deadlineField,omitempty"`
	DefaultValidity time.Duration `json:"defaultValidity,omitempty"`

	// IdentityField is filled with the connected signer address when absent.
	IdentityField string `json:"identityField,omitempty"`

	Method MethodShape `json:"method"`
}

// Field returns the named struct field.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ArrayHashFor returns the binding that fills the given struct field.
func (d *Definition) ArrayHashFor(field string) (ArrayHash, bool) {
	for _, ah := range d.ArrayHashes {
		if ah.Field == field {
			return ah, true
		}
	}
	return ArrayHash{}, false
}

// InputKeys lists the keys a caller-built message may carry: every struct
// field not derived from an array, plus every array source.
func (d *Definition) InputKeys() []string {
	keys := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if _, derived := d.ArrayHashFor(f.Name); derived {
			continue
		}
		keys = append(keys, f.Name)
	}
	for _, ah := range d.ArrayHashes {
		keys = append(keys, ah.Source)
	}
	return keys
}

// Types returns the apitypes type set (domain + primary type).
func (d *Definition) Types() apitypes.Types {
	domainFields := d.Domain.Fields()
	types := apitypes.Types{
		DomainType:    make([]apitypes.Type, len(domainFields)),
		d.PrimaryType: make([]apitypes.Type, len(d.Fields)),
	}
	for i, f := range domainFields {
		types[DomainType][i] = apitypes.Type{Name: f.Name, Type: f.Type}
	}
	for i, f := range d.Fields {
		types[d.PrimaryType][i] = apitypes.Type{Name: f.Name, Type: f.Type}
	}
	return types
}

// ID is the registry key: "name@version".
func (d *Definition) ID() string {
	return d.Name + "@" + d.Version
}

func (d *Definition) clone() *Definition {
	c := *d
	c.Fields = append([]Field(nil), d.Fields...)
	c.ArrayHashes = append([]ArrayHash(nil), d.ArrayHashes...)
	c.Method.Args = append([]Arg(nil), d.Method.Args...)
	return &c
}
