package main

import "github.com/kpkab/nested-ad-group-to-flat-db-group/cmd"

func main() {
	cmd.Execute()
}
