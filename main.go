package main

import "github.com/tedsh/ted/cmd"

func main() {
	cmd.Execute()
}
