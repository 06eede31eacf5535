package main

import "example.com/trackerimport/internal/cli"

func main() {
	cli.Execute()
}
