// Command entq plans and runs predicate queries over entity stores.
package main

import (
	"os"

	"github.com/roach88/entq/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
