package main

import "github.com/nvr-ai/facematch/cmd"

func main() {
	cmd.Execute()
}
