package main

import (
	"os"

	"github.com/stevegt/datastore"
	. "github.com/stevegt/goadapt"
)

func main() {
	config := datastore.NewConfig()
	rc, err := datastore.Cli(os.Args[1:], config)
	if err != nil {
		Fpf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(rc)
}
