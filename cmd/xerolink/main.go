package main

import (
	"os"

	"github.com/xerolink/xerolink/internal/cli"
)

func main() {
	cli.InitRoot()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
