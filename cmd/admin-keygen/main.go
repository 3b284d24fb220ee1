package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"student-records-backend/internal/admin"
)

func main() {
	s := flag.String("key", os.Getenv("JWT_SECRET"), "Secret used to sign the admin JWT (defaults to $JWT_SECRET)")
	iss := flag.String("issuer", "student-records", "Issuer claim, must match JWT_ISSUER of the server")
	e := flag.String("exp", time.Now().Add(time.Hour*24*30).Format(time.RFC3339), "RFC3339 time of the expiration date")
	flag.Parse()

	if *s == "" {
		fmt.Println("--key is required")
		os.Exit(1)
	}

	exp, err := time.Parse(time.RFC3339, *e)
	if err != nil {
		fmt.Println("--exp invalid time")
		os.Exit(1)
	}

	ss, err := admin.GenerateToken(exp, *s, *iss)
	if err != nil {
		os.Exit(1)
	}

	fmt.Println("Token successfully generated:", ss)
}
