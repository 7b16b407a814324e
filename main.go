package main

import "github.com/brensch/vmrmigrate/cmd"

func main() {
	cmd.Execute()
}
