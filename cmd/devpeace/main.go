package main

import (
	"fmt"
	"os"

	"github.com/mateuslacerda/devpeace/cmd/devpeace/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "devpeace:", err)
		os.Exit(1)
	}
}
