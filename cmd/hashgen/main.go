// Package main prints the bcrypt hash of a password, for setting
// OPERATOR_PASSWORD_HASH.
package main

import (
	"fmt"
	"os"

	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/utils"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hashgen <password>")
		os.Exit(1)
	}
	hash, err := utils.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
