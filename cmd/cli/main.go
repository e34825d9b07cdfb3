package main

import "newsdist/cmd/cli/command"

func main() {
	command.Execute()
}
