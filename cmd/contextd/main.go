// Command contextd indexes a project and serves its code-intelligence
// tool surface (search, read_pack, context_pack, meaning/evidence, ...)
// over MCP stdio.
package main

import "github.com/cortexlens/contextd/internal/cli"

func main() {
	cli.Execute()
}
