package main

import "github.com/openshelf/bookdex/internal/cli"

func main() {
	cli.Execute()
}
