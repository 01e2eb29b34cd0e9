package main

import "procurement-signals/internal/cli"

func main() {
	cli.Execute()
}
