package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/oggyb/anon-relay/internal/server"
)

// Prints the GRPC_AUTH_HASH value for a bot credential.
//
//	keygen <credential>
//	echo -n "$BOT_TOKEN" | keygen
func main() {
	var secret string
	if len(os.Args) > 1 {
		secret = os.Args[1]
	} else {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		secret = strings.TrimSpace(line)
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "usage: keygen <credential>")
		os.Exit(2)
	}

	hash, err := server.HashCredential(secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
