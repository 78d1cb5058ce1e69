package cmd

import (
	"fmt"
	"io"

	"grimm.is/palisade/internal/firewall"
)

// RunSkeleton prints the static base ruleset the daemon applies at the
// start of every enabled cycle. Useful with `nft -c -f -` to validate
// it against the installed nft version.
func RunSkeleton(w io.Writer) {
	fmt.Fprint(w, firewall.Skeleton)
}
