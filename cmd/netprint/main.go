package main

import "github.com/cyberinferno/netprint/cmd"

func main() {
	cmd.Execute()
}
