package main

import "github.com/brazeiro63/vovo-achados-portal/cmd"

func main() {
	cmd.Execute()
}
