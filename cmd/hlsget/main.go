package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		code := exitCode(err)
		if code == exitInterrupted {
			fmt.Fprintln(os.Stderr, "hlsget: interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "hlsget: %v\n", err)
		}
		os.Exit(code)
	}
}
