package main

import "github.com/drsoft-oss/wolproxy/cmd"

func main() {
	cmd.Execute()
}
