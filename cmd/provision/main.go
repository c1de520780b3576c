// Command provision applies a document-database catalog: collection
// schemas, composite indexes, access rules and seed data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/provision/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		// ExitErrors were already reported by the command's formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "provision:", err)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
