package main

import "closeus-backend/cmd"

func main() {
	cmd.Execute()
}
