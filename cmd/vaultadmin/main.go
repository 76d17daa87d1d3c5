package main

import (
	"os"

	"github.com/dmitrijs2005/healthvault/internal/admincli"
)

func main() {
	os.Exit(admincli.Execute())
}
