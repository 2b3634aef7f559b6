package main

import "github.com/smazurov/protoframe/cmd"

func main() {
	cmd.Main()
}
