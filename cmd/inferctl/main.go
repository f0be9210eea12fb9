package main

import (
	"fmt"
	"os"

	"inferd/internal/ctl"
)

func main() {
	if err := ctl.BuildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "inferctl:", err)
		os.Exit(1)
	}
}
