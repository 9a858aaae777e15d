package main

import "github.com/jfmyers9/webscrobbler/cmd"

func main() {
	cmd.Execute()
}
