package main

import "github.com/marcus/swarmsched/cmd/swarmsched/commands"

func main() {
	commands.Execute()
}
