package main

import "github.com/Tutortoise/face-enrichment-service/cmd"

func main() {
	cmd.Execute()
}
