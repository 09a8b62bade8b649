// Command generate-vapid creates the VAPID key pair web push needs and
// prints it in .env form.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	webpush "github.com/SherClockHolmes/webpush-go"
)

func main() {
	out := flag.String("out", "", "also write the keys to this file (0600)")
	flag.Parse()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		log.Fatalf("Failed to generate VAPID keys: %v", err)
	}

	env := fmt.Sprintf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\nVAPID_SUBJECT=mailto:admin@example.com\n",
		publicKey, privateKey)

	fmt.Print(env)

	if *out != "" {
		if err := os.WriteFile(*out, []byte(env), 0600); err != nil {
			log.Fatalf("Failed to write %s: %v", *out, err)
		}
		fmt.Fprintf(os.Stderr, "Keys written to %s\n", *out)
	}
}
