// cmd/crewflow/main.go
//
// Entry point for the crewflow CLI. Commands live next to this file:
//
//	init      create .crewflow/ in the project directory
//	classify  recommend a model tier for a task description
//	savings   compare the recommended tier against a baseline
//	run       execute a workflow definition
//	status    show the last run report and journal tail

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
