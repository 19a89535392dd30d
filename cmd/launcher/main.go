package main

import (
	"errors"
	"os"
)

func main() {
	a := newApp()
	root := newRootCmd(a)

	if err := runLauncher(a, root); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		printError(err)
		os.Exit(1)
	}
}
