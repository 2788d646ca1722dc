package main

import (
	"os"

	"fintrack/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
