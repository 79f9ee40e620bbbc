package main

import (
	"github.com/ssargent/avrokit/cmd/avrokit/cmd"
)

func main() {
	cmd.Execute()
}
