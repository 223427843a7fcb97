// Command sign answers ed25519 login challenges. Without -server it signs
// base64 challenges typed on stdin; with -server it fetches the challenge,
// signs it and prints the auth header value accepted by the site.
package main

import (
	"bufio"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/debemdeboas/atelier/internal/routes"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func loadPrivateKey(filename string) (ed25519.PrivateKey, error) {
	privKeyBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return parsePrivateKey(privKeyBytes)
}

func parsePrivateKey(pemBytes []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 private key")
	}
	return edPriv, nil
}

// signChallenge signs a base64 challenge and returns the base64 signature.
func signChallenge(key ed25519.PrivateKey, challengeB64 string) (string, error) {
	challenge, err := base64.StdEncoding.DecodeString(strings.TrimSpace(challengeB64))
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, challenge)), nil
}

// login signs the server's current challenge and verifies it, returning
// the signature to send in the auth header.
func login(client *http.Client, server string, key ed25519.PrivateKey, header string) (string, error) {
	server = strings.TrimRight(server, "/")

	resp, err := client.Get(server + routes.AuthChallenge)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("challenge request failed: %s", resp.Status)
	}

	var body struct {
		Challenge string `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error decoding challenge: %w", err)
	}

	sig, err := signChallenge(key, body.Challenge)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, server+routes.AuthVerify, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(header, sig)

	vresp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer vresp.Body.Close()
	if vresp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(vresp.Body, 512))
		return "", fmt.Errorf("verification failed: %s %s", vresp.Status, strings.TrimSpace(string(msg)))
	}
	return sig, nil
}

// interactive signs challenges from in until EOF or "quit".
func interactive(key ed25519.PrivateKey, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Enter challenges one by one. Type 'quit' to exit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("Enter challenge (base64): "))
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}

		sig, err := signChallenge(key, line)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		fmt.Fprintln(out, outputStyle.Render("Signature: "+sig))
	}
	return scanner.Err()
}

func main() {
	keyPath := flag.String("key", "privkey.pem", "PEM encoded PKCS8 ed25519 private key")
	server := flag.String("server", "", "Base URL of the site to log in to")
	header := flag.String("header", "Authorization", "Header the site reads signatures from")
	flag.Parse()

	key, err := loadPrivateKey(*keyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error loading private key: "+err.Error()))
		os.Exit(1)
	}

	if *server != "" {
		sig, err := login(&http.Client{Timeout: 10 * time.Second}, *server, key, *header)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			os.Exit(1)
		}
		fmt.Println(outputStyle.Render(*header + ": " + sig))
		return
	}

	if err := interactive(key, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading input:", err)
		os.Exit(1)
	}
}
