package main

import "github.com/mammuth/gravity-tasks/cmd/client/cmd"

func main() {
	cmd.Execute()
}
