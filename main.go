package main

import "github.com/example/learnsync/cmd"

func main() {
	cmd.Execute()
}
