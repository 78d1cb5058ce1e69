//go:build !linux

package nftjson

import "errors"

// Probe always fails off Linux; nftables is a Linux kernel subsystem.
func Probe() error {
	return errors.New("nftables is only available on linux")
}
