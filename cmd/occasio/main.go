package main

import "github.com/occasio/occasio/cmd/occasio/cmd"

func main() {
	cmd.Execute()
}
