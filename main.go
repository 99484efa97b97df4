// The main package for the listwatch executable.
package main

import (
	"github.com/listwatch/listwatch/cmd"
)

func main() {
	cmd.Execute()
}
