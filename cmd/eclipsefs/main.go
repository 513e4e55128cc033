package main

import (
	"os"

	"github.com/eclipse-os/eclipsefs/cmd/eclipsefs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
