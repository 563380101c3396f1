package main

import "github.com/hjtapia74/agiloft-api-example/cmd"

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
