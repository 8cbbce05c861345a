package main

import (
	"os"

	"github.com/gwrxuk/FastTrading/cmd/fasttradingd/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
