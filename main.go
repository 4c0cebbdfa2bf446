package main

import "github.com/jmehdipour/coin-faucet/cmd"

func main() {
	cmd.Execute()
}
