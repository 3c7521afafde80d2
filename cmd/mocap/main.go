// Command mocap manages motion capture recordings: it lists, exports and
// uploads stored takes, serves the catalog over HTTP and runs a synthetic
// capture session for smoke testing.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// set at build time
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command and releases everything setup acquired, also when
// the command fails.
func run(args []string, out io.Writer) error {
	a := &app{}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	err := cmd.Execute()
	return errors.Join(err, a.shutdown())
}
