package main

import (
	"folio-core/internal/cli"
	"folio-core/internal/version"
)

func main() {
	cli.Execute(version.GetVersion())
}
