package main

import (
	"DispatchEngine/cmd"
)

func main() {
	cmd.Execute()
}
