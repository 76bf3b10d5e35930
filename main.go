// The main package for the labor-market-etl executable.
package main

import (
	"github.com/JakeFAU/labor-market-etl/cmd"
)

func main() {
	cmd.Execute()
}
