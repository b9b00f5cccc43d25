package main

import "github.com/vietddude/planbridge/internal/cli"

func main() {
	cli.Execute()
}
