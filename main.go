package main

import "github.com/longkey1/llmchat/cmd"

func main() {
	cmd.Execute()
}
