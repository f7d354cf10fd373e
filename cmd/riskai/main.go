package main

import (
	"os"

	"riskai/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
