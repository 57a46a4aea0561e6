// Package ton normalizes the TON wallet addresses players connect.
package ton

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

var ErrInvalidAddress = errors.New("invalid TON address")

// NormalizeAddress accepts a user-friendly (EQ.../UQ...) or raw ("0:hex")
// address and returns the non-bounceable user-friendly form for network.
func NormalizeAddress(raw, network string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}

	var (
		addr *address.Address
		err  error
	)
	if strings.Contains(raw, ":") {
		addr, err = address.ParseRawAddr(raw)
	} else {
		addr, err = address.ParseAddr(raw)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	if addr.IsTestnetOnly() && network != "testnet" {
		return "", fmt.Errorf("%w: testnet address on %s", ErrInvalidAddress, network)
	}

	addr.SetBounce(false)
	addr.SetTestnetOnly(network == "testnet")
	return addr.String(), nil
}
