package main

import "lectern/cmd"

func main() {
	cmd.Execute()
}
