package main

import "github.com/domainwatch/domainwatch/cli"

func main() {
	cli.Execute()
}
