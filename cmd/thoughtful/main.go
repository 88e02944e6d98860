package main

import "thoughtful/api/internal/cli"

func main() {
	cli.Execute()
}
