package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes; 10 and 20 follow the SAT competition convention
const (
	exitComplete     = 10
	exitNotVerified  = 15
	exitInfeasible   = 20
	exitIncomplete   = 30
	exitInvalidUsage = 1
)

// exitError ends the process with a code after the report has been printed.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	err := rootCmd.Execute()
	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvalidUsage)
	}
}
