package utils

import (
	"regexp"
	"strings"
)

var evmAddressPattern = regexp.MustCompile("^[0-9a-fA-F]{40}$")

// IsEvmAddress check whether the string is a 20-byte EVM address
func IsEvmAddress(address string) bool {
	if address == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return len(address) == 42 && evmAddressPattern.MatchString(address[2:])
	}
	return len(address) == 40 && evmAddressPattern.MatchString(address)
}

// NormalizeAddress lower-cases an address and guarantees the 0x prefix.
// All policy comparisons (allow-lists) run on normalized addresses.
func NormalizeAddress(address string) string {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ContainsAddress reports whether list contains address, case-insensitively
func ContainsAddress(list []string, address string) bool {
	target := NormalizeAddress(address)
	for _, item := range list {
		if NormalizeAddress(item) == target {
			return true
		}
	}
	return false
}
