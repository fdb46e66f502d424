package types

import "strings"

// Chain is the symbol of a ledger participating in a transfer, e.g. WAN or ETH.
type Chain string

func NormalizeChain(raw string) Chain {
	return Chain(strings.ToUpper(strings.TrimSpace(raw)))
}

func (c Chain) String() string {
	return string(c)
}
