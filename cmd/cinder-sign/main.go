// cinder-sign is the offline companion to cinderd: it generates
// encrypted keyfiles, signs permit digests without touching the node,
// and mints operator bearer tokens.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/holiman/uint256"

	"github.com/cinder-labs/cinder/amount"
	"github.com/cinder-labs/cinder/config"
	"github.com/cinder-labs/cinder/crypto"
	"github.com/cinder-labs/cinder/crypto/address"
	"github.com/cinder-labs/cinder/crypto/keystore"
	"github.com/cinder-labs/cinder/eip712"
	"github.com/cinder-labs/cinder/ledger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "keygen":
		runKeygen(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cinder-sign <keygen|sign|token> [flags]")
	fmt.Fprintln(os.Stderr, "  keygen  generate a key and write an encrypted keyfile")
	fmt.Fprintln(os.Stderr, "  sign    sign a permit digest with a local key")
	fmt.Fprintln(os.Stderr, "  token   mint an operator bearer token from the shared secret")
	os.Exit(2)
}

func runKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "key.json", "path for the encrypted keyfile")
	passphrase := fs.String("passphrase", "", "keyfile passphrase, or CINDER_PASSPHRASE")
	fs.Parse(args)

	if *passphrase == "" {
		*passphrase = os.Getenv("CINDER_PASSPHRASE")
	}
	if *passphrase == "" {
		log.Fatalf("A passphrase is required, via -passphrase or CINDER_PASSPHRASE")
	}

	signer, err := crypto.NewPrivateKey()
	if err != nil {
		log.Fatalf("Failed to generate a key: %v", err)
	}
	if err := keystore.WriteFile(*out, signer, *passphrase); err != nil {
		log.Fatalf("Failed to write the keyfile: %v", err)
	}

	fmt.Printf("Address: %s\n", signer.Address())
	fmt.Printf("Keyfile: %s\n", *out)
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	keyHex := fs.String("key", "", "signing key as raw hex")
	keyfile := fs.String("keyfile", "", "encrypted keyfile path")
	passphrase := fs.String("passphrase", "", "keyfile passphrase, or CINDER_PASSPHRASE")
	spenderStr := fs.String("spender", "", "spender address")
	valueStr := fs.String("value", "", "approved value in base units")
	valueCNDR := fs.String("value-cndr", "", "approved value as a decimal CNDR amount")
	nonce := fs.Uint64("nonce", 0, "owner permit nonce, see the nonces RPC method")
	deadline := fs.Uint64("deadline", 0, "deadline as unix seconds")
	ttl := fs.Duration("ttl", 0, "deadline as now+ttl, instead of -deadline")
	name := fs.String("name", config.DefaultTokenName, "token name bound into the domain")
	chainID := fs.Uint64("chain-id", config.DefaultChainID, "chain id bound into the domain")
	ledgerStr := fs.String("ledger", "", "ledger address bound into the domain")
	fs.Parse(args)

	signer := loadSigner(*keyHex, *keyfile, *passphrase)

	spender, err := address.FromString(*spenderStr)
	if err != nil {
		log.Fatalf("Invalid spender address: %v", err)
	}
	ledgerAddr, err := address.FromString(*ledgerStr)
	if err != nil {
		log.Fatalf("Invalid ledger address: %v", err)
	}

	var value *uint256.Int
	switch {
	case *valueStr != "" && *valueCNDR != "":
		log.Fatalf("Use either -value or -value-cndr, not both")
	case *valueCNDR != "":
		value, err = amount.Parse(*valueCNDR)
	case *valueStr != "":
		value, err = uint256.FromDecimal(*valueStr)
	default:
		log.Fatalf("A value is required, via -value or -value-cndr")
	}
	if err != nil {
		log.Fatalf("Invalid value: %v", err)
	}

	if *ttl != 0 {
		*deadline = uint64(time.Now().Add(*ttl).Unix())
	}
	if *deadline == 0 {
		log.Fatalf("A deadline is required, via -deadline or -ttl")
	}

	domain := eip712.DomainSeparator(*name, ledger.Version, *chainID, ledgerAddr)
	digest := eip712.PermitDigest(domain, signer.Address(), spender, value, *nonce, *deadline)
	sig, err := signer.Sign(digest)
	if err != nil {
		log.Fatalf("Failed to sign the digest: %v", err)
	}

	fmt.Printf("Owner:     %s\n", signer.Address())
	fmt.Printf("Spender:   %s\n", spender)
	fmt.Printf("Value:     %s\n", value)
	fmt.Printf("Nonce:     %d\n", *nonce)
	fmt.Printf("Deadline:  %d\n", *deadline)
	fmt.Printf("Signature: 0x%x\n", sig)
}

func loadSigner(keyHex, keyfile, passphrase string) crypto.Signer {
	switch {
	case keyHex != "" && keyfile != "":
		log.Fatalf("Use either -key or -keyfile, not both")
	case keyHex != "":
		signer, err := crypto.NewPrivateKeyFromHex(keyHex)
		if err != nil {
			log.Fatalf("Invalid signing key: %v", err)
		}
		return signer
	case keyfile != "":
		if passphrase == "" {
			passphrase = os.Getenv("CINDER_PASSPHRASE")
		}
		signer, err := keystore.ReadFile(keyfile, passphrase)
		if err != nil {
			log.Fatalf("Failed to open the keyfile: %v", err)
		}
		return signer
	}
	log.Fatalf("A signing key is required, via -key or -keyfile")
	return nil
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", "", "operator shared secret, or ADMIN_SECRET")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	fs.Parse(args)

	if *secret == "" {
		*secret = os.Getenv("ADMIN_SECRET")
	}
	if *secret == "" {
		log.Fatalf("A secret is required, via -secret or ADMIN_SECRET")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "operator",
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*secret))
	if err != nil {
		log.Fatalf("Failed to sign the token: %v", err)
	}

	fmt.Println(signed)
}
