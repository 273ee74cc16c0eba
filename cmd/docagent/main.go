package main

import (
	"os"

	"github.com/wwwzy/DocAgent/internal/cli"
	"github.com/wwwzy/DocAgent/internal/log"
)

func main() {
	err := cli.Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}
