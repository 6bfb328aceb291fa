package main

import "github.com/stallpos/auth-service/cmd/stallauth/cmd"

func main() {
	cmd.Execute()
}
