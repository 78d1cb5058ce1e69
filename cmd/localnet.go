package cmd

import (
	"fmt"
	"io"

	"grimm.is/palisade/internal/host"
)

// RunLocalnet prints the detected management networks, the CIDRs the
// autogenerated management ipset would contain on this node.
func RunLocalnet(w io.Writer) error {
	hostname, err := host.Hostname()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "local hostname: %s\n", hostname)

	ips, err := host.IPs()
	if err != nil {
		return fmt.Errorf("resolve host addresses: %w", err)
	}
	for _, ip := range ips {
		fmt.Fprintf(w, "local IP address: %s\n", ip)
	}

	networks, err := host.ManagementNetworks()
	if err != nil {
		return fmt.Errorf("detect management networks: %w", err)
	}
	if len(networks) == 0 {
		fmt.Fprintln(w, "no local network detected")
		return nil
	}
	for _, network := range networks {
		fmt.Fprintf(w, "detected local network: %s\n", network)
	}
	return nil
}
