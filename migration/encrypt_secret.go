// Command encrypt_secret prints the encrypted form of a gateway credential
// for use in the environment (SMPP_PASSWORD, SMS_HTTP_PASSWORD, DB_PASSWORD).
//
// Usage:
//
//	go run ./migration -key=$ENCRYPTION_KEY -value=PASSWORD
//	go run ./migration -key=$ENCRYPTION_KEY -decrypt -value=enc:...
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/secret"
)

func main() {
	key := flag.String("key", os.Getenv("ENCRYPTION_KEY"), "encryption key (defaults to ENCRYPTION_KEY)")
	value := flag.String("value", "", "value to encrypt or decrypt")
	decrypt := flag.Bool("decrypt", false, "decrypt instead of encrypt")
	flag.Parse()

	if *key == "" || *value == "" {
		flag.Usage()
		os.Exit(2)
	}

	var (
		out string
		err error
	)
	if *decrypt {
		out, err = secret.Decrypt(*value, *key)
	} else {
		out, err = secret.Encrypt(*value, *key)
	}
	if err != nil {
		logrus.WithError(err).Fatal("secret operation failed")
	}
	fmt.Println(out)
}
