package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// AggregatorABI covers the price aggregator's read methods.
const AggregatorABI = `[
	{"inputs":[{"name":"token","type":"address"}],"name":"getPrice","outputs":[{"name":"price","type":"uint128"},{"name":"lastUpdated","type":"uint64"},{"name":"decimals","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"}],"name":"getRawPriceData","outputs":[{"components":[{"name":"price","type":"uint128"},{"name":"lastUpdated","type":"uint64"},{"name":"decimals","type":"uint8"},{"name":"name","type":"string"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"}
]`

// ERC20ABI covers the token methods used by meta-transactions.
const ERC20ABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

//nolint:gochecknoglobals // parsed once; the JSON above is constant
var (
	aggregatorABI = mustParse(AggregatorABI)
	erc20ABI      = mustParse(ERC20ABI)

	addressType = mustType("address")
	uint256Type = mustType("uint256")
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// ERC20 returns the parsed ERC-20 ABI.
func ERC20() abi.ABI {
	return erc20ABI
}

// Aggregator returns the parsed price aggregator ABI.
func Aggregator() abi.ABI {
	return aggregatorABI
}

// counterMethod is a view method taking one address and returning uint256,
// e.g. nonces(address) or getNonce(address).
func counterMethod(name string) abi.Method {
	return abi.NewMethod(name, name, abi.Function, "view", true, false,
		abi.Arguments{{Name: "account", Type: addressType}},
		abi.Arguments{{Name: "", Type: uint256Type}})
}
