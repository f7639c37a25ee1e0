// Command gedcomctl inspects and converts GEDCOM files without a server.
package main

import (
	"fmt"
	"os"

	"github.com/camden-git/familytree/logging"
)

func main() {
	logger, err := logging.New("warn", "console")
	if err == nil {
		defer logging.Install(logger)()
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
