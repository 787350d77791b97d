package main

import "github.com/tafreeman/prompteval/cmd"

func main() {
	cmd.Execute()
}
