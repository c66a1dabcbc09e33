package main

import "github.com/curaious/xm/cmd"

func main() {
	cmd.Execute()
}
