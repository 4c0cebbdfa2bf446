package faucet

import "regexp"

const (
	MinAddressLen = 10
	MaxAddressLen = 50
)

var addressRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ValidateAddress performs the syntactic check only; the node is the
// authority on whether the address is spendable.
func ValidateAddress(address string) error {
	if len(address) < MinAddressLen || len(address) > MaxAddressLen {
		return ErrInvalidAddress
	}
	if !addressRe.MatchString(address) {
		return ErrInvalidAddress
	}
	return nil
}
