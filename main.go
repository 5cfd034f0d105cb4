package main

import "github.com/Norgate-AV/fuser/cmd"

func main() {
	cmd.Execute()
}
