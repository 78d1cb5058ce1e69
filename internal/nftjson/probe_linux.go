//go:build linux

package nftjson

import (
	"fmt"

	"github.com/google/nftables"
)

// Probe verifies the kernel can service nftables netlink requests, so a
// misconfigured host fails at startup instead of on the first sync cycle.
func Probe() error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("open nftables netlink socket: %w", err)
	}

	if _, err := conn.ListTables(); err != nil {
		return fmt.Errorf("kernel nftables support missing: %w", err)
	}

	return nil
}
