package main

import "github.com/Wideyedwonderer/buscuit-maker/cmd/server/cmd"

func main() {
	cmd.Execute()
}
