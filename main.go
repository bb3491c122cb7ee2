package main

import "github.com/iksnae/mcp-station/cmd"

func main() {
	cmd.Execute()
}
