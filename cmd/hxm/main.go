package main

import (
	"os"

	"github.com/helixcode-ai/hx-model-manager/internal/hxmcli"
)

func main() {
	if err := hxmcli.Execute(); err != nil {
		os.Exit(1)
	}
}
