package main

import "just_us/cmd/chatctl/cmd"

func main() {
	cmd.Execute()
}
