package main

import "github.com/ranma/camlink-re/cmd/camtool/cmd"

func main() {
	cmd.Execute()
}
