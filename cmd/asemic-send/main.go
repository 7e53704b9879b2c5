// Command asemic-send is a one-shot CLI that posts a single message to a
// running asemicd's control plane.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/term"
)

func main() {
	controlAddr := flag.String("control", "127.0.0.1:7080", "asemicd control-plane address")
	target := flag.String("target", "", "destination host:port")
	text := flag.String("text", "", "message text to send")
	input := flag.String("input", "", "path to a file to send instead of -text")
	pattern := flag.String("pattern", "Starfall", "obfuscation pattern: Starfall or Sunshine")
	key := flag.String("key", "", "trial-decryption key (omit to be prompted, hidden)")
	legacy := flag.Bool("legacy", false, "use the deprecated XOR+signature envelope (CompatMode peers only)")
	flag.Parse()

	if *target == "" {
		log.Fatal("asemic-send: -target is required")
	}
	if *text == "" && *input == "" {
		log.Fatal("asemic-send: one of -text or -input is required")
	}
	if *text != "" && *input != "" {
		log.Fatal("asemic-send: -text and -input are mutually exclusive")
	}

	secret := *key
	if secret == "" {
		var err error
		secret, err = promptHiddenKey()
		if err != nil {
			log.Fatalf("asemic-send: reading key: %v", err)
		}
	}

	payload := map[string]interface{}{
		"target":  *target,
		"key":     secret,
		"pattern": *pattern,
		"legacy":  *legacy,
	}
	if *input != "" {
		data, err := os.ReadFile(*input)
		if err != nil {
			log.Fatalf("asemic-send: reading %s: %v", *input, err)
		}
		payload["filename"] = filepath.Base(*input)
		payload["file_data"] = data
	} else {
		payload["text"] = *text
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("asemic-send: encoding request: %v", err)
	}

	resp, err := http.Post(fmt.Sprintf("http://%s/send", *controlAddr), "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("asemic-send: request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(resp.Body)
		log.Fatalf("asemic-send: daemon rejected send (%s): %s", resp.Status, detail)
	}

	fmt.Println("queued")
}

// promptHiddenKey reads a key from the terminal without echoing it back,
// mirroring the teacher's password-entry helper.
func promptHiddenKey() (string, error) {
	fmt.Fprint(os.Stderr, "key: ")
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("key read failed: %w", err)
	}
	return string(secret), nil
}
