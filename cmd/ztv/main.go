package main

import "github.com/mayanks4367/zero-trust/cli/cmd"

var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
