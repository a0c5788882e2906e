package main

import "github.com/campbase/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
