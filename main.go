package main

import (
	"github.com/mcp-portal/gateway/cmd"
)

func main() {
	cmd.Execute()
}
