package main

import "ai-docchat/internal/cli"

func main() {
	cli.Execute()
}
