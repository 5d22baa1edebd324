package main

import "github.com/agentic-research/wildfly-postgresql/cmd"

func main() {
	cmd.Execute()
}
