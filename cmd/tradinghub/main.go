package main

import "github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/cli"

func main() {
	cli.Execute()
}
