package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(loadApp).Execute(); err != nil {
		if !errors.Is(err, errUnhealthy) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
