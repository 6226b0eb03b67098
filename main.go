package main

import "github.com/valpere/batchtran/cmd"

func main() {
	cmd.Execute()
}
