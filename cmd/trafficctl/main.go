package main

import "github.com/trafficwise/platform/internal/cli"

func main() {
	cli.Execute()
}
