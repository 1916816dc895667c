package main

import (
	"os"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/cli"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "HieraChain-RouterNet"
)

func main() {
	if err := cli.Execute(Name, Version); err != nil {
		os.Exit(1)
	}
}
