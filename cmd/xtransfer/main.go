package main

import (
	"github.com/scalarorg/xtransfer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		cmd.Fail(err)
	}
}
