package main

import (
	"github.com/stustapay/stustapayd/internal/cli"
)

func main() {
	cli.Execute()
}
