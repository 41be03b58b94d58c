package main

import (
	"github.com/babelmeet/babelmeet/cmd"
	"github.com/babelmeet/babelmeet/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
