package main

import "github.com/frahmantamala/bookkeeping/cmd"

func main() {
	cmd.Execute()
}
