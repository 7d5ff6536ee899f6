// The main package for the kb executable.
package main

import (
	"github.com/JakeFAU/campus-kb/cmd"
)

func main() {
	cmd.Execute()
}
