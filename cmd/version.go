package cmd

import (
	"fmt"
	"io"
	"runtime"

	"grimm.is/palisade/internal/brand"
)

// RunVersion prints the binary's version line.
func RunVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s (%s %s/%s)\n",
		brand.BinaryName, brand.Version,
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
