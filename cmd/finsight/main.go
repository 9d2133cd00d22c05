package main

import (
	"os"

	"github.com/leozhang/finsight/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
