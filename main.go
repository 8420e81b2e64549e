// Package main is the entry point of the sbom-enricher CLI and API server
package main

import "github.com/ortelius/sbom-enricher/cmd"

func main() {
	cmd.Execute()
}
