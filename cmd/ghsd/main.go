package main

import "github.com/guwenyu1996/Distributed-Algorithms/internal/cli"

func main() {
	cli.Execute()
}
