// ./main.go
package main

import (
	"github.com/aduanet/aduanet-cli/cmd"
)

func main() {
	cmd.Execute()
}
