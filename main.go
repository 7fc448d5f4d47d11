package main

import "github.com/mselser95/typed-signer/cmd"

func main() {
	cmd.Execute()
}
