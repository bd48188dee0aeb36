// Command credctl is the offline credcore tool.
package main

import "github.com/turtacn/credcore/cmd/cli"

func main() {
	cli.Execute()
}
