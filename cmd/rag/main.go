package main

import "retrieval/internal/cli"

func main() {
	cli.Execute()
}
