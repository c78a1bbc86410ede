package registry

import "strings"

// Permit2Address is the canonical spend-authorization contract. It is
// deployed at the same address on every supported EVM chain.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ResolveSpender translates the backend's approval target into the address
// that actually pulls funds. A zero address is the backend's sentinel for
// the shared permit contract.
func ResolveSpender(target string) string {
	clean := strings.TrimSpace(target)
	if clean == "" || strings.EqualFold(clean, zeroAddress) {
		return Permit2Address
	}
	return clean
}

// IsNativeToken reports whether an address is one of the sentinels backends
// use for the chain's native asset.
func IsNativeToken(address string) bool {
	clean := strings.TrimSpace(address)
	if clean == "" || strings.EqualFold(clean, zeroAddress) {
		return true
	}
	return strings.EqualFold(clean, "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
}
