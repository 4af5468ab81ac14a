package main

import "github.com/lowpan/rpl/cmd"

func main() {
	cmd.Execute()
}
