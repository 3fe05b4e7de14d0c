package main

import "github.com/LAG-4/cafefinder/cmd"

func main() {
	cmd.Execute()
}
