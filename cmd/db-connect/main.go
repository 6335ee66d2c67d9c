package main

import "github.com/chetandr-lohono/lohono-db-connect/cmd/db-connect/cmd"

func main() {
	cmd.Execute()
}
