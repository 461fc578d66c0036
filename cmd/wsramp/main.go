package main

import (
	"wsramp/cmd"
)

func main() {
	cmd.Execute()
}
