package main

import "github.com/frahmantamala/sacco-management/cmd"

func main() {
	cmd.Execute()
}
