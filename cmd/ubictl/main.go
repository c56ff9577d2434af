package main

import (
	"fmt"
	"os"

	"github.com/dailycoin/ubi-ledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ubictl: %v\n", err)
		os.Exit(1)
	}
}
