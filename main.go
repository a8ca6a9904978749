package main

import "github.com/samsaffron/qa-chat/cmd"

func main() {
	cmd.Execute()
}
