package main

import (
	"github.com/mortehu/cantera-cas/cmd/cas/cmd"
)

func main() {
	cmd.Execute()
}
