package main

import (
	"os"

	"mkettler/groceryworker/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
