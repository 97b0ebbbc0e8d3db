package main

import (
	"github.com/xkilldash9x/mrmurphy/cmd"
)

func main() {
	cmd.Execute()
}
