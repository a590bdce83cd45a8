package cmd

import (
	"fmt"

	"grimm.is/netmirror/internal/brand"
)

// RunVersion prints the build identity.
func RunVersion() {
	fmt.Printf("%s %s", brand.Name, brand.Version)
	if brand.GitCommit != "" && brand.GitCommit != "unknown" {
		fmt.Printf(" (%s)", brand.GitCommit)
	}
	fmt.Println()
}
