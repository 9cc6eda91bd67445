package main

import (
	"os"

	"github.com/adalundhe/mosaic/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
