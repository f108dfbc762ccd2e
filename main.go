package main

import "github.com/RyanBlaney/magictales/cmd"

func main() {
	cmd.Execute()
}
