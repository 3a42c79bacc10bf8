package main

import (
	"os"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
