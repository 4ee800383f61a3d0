package main

import (
	"os"

	"github.com/hamed0406/uptimewatch/cmd/uptimectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
