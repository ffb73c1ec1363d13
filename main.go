// File: /main.go
package main

import "chyrp-api/cmd"

func main() {
	cmd.Execute()
}
