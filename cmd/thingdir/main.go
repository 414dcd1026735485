// Command thingdir runs the Thing Description directory.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/thingdir/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "thingdir:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
