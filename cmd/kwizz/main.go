package main

import (
	"os"

	"github.com/kwizz/kwizz-go/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
