// Command flowgraph runs and queries the taint flow monitor.
package main

import "github.com/ppiankov/flowgraph/internal/cli"

func main() {
	cli.Execute()
}
