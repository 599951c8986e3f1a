package main

import (
	"github.com/dexhound/dexhound/cmd"
)

func main() {
	cmd.Execute()
}
