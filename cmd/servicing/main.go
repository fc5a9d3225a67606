package main

import (
	"os"

	"github.com/sushiva/omni-channel-ai-servicing/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
