package main

import (
	"fmt"
	"os"

	"github.com/guidoasbun/chat-sec-1/cmd/vaultctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
