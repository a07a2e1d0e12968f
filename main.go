package main

import (
	"os"

	"github.com/projecteru2/remote/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
