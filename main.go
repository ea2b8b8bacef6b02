package main

import "github.com/kris-hansen/promptchain/cmd"

func main() {
	cmd.Execute()
}
