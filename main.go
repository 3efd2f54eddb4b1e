package main

import (
	"github.com/autodebug/autodebug/cmd"
)

func main() {
	cmd.Execute()
}
