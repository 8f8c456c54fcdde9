/*
Package main provides the newsletterctl entry point.
*/
package main

import (
	"os"

	"github.com/ignite/newsletter-engine/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
