package main

import "github.com/encodeous/sospf/cmd"

func main() {
	cmd.Execute()
}
