package main

import "github.com/cronkit/scheduler/cmd"

func main() {
	cmd.Execute()
}
