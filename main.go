package main

import "bioknowledge/kbsync/cmd"

func main() {
	cmd.Execute()
}
