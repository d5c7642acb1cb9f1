package main

import "zerozero/internal/cli"

func main() {
	cli.Execute()
}
