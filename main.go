package main

import (
	"stock-price-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
