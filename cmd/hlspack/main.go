package main

import (
	"os"

	"github.com/m1k1o/go-hlspack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
