// Command estatecore operates the property store from the shell: seeding demo
// data, importing bank statements, paying invoices and reading the audit trail.
package main

import (
	"fmt"
	"os"

	"estatecore/internal/config"
)

func main() {
	config.LoadDotEnv()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
