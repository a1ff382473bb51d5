package main

import (
	"os"

	"github.com/Ozmachines/Eletric-Machines/cmd/machmap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
