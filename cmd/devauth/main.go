// Command devauth is a local OIDC issuer for exercising relquery's bearer
// auth and role switching. It generates an RSA key pair, mints RS256 tokens
// and serves the discovery document and JWKS the server verifies against.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

const usage = `usage: devauth <keys|mint|serve> [flags]`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "keys":
		return runKeys(args[1:], out)
	case "mint":
		return runMint(args[1:], out)
	case "serve":
		return runServe(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runKeys(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	dir := fs.String("dir", ".auth", "Output directory for keys")
	bits := fs.Int("bits", 2048, "RSA key size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	privatePath, publicPath, err := writeKeyPair(*dir, *bits)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "wrote %s and %s\n", privatePath, publicPath)
	return nil
}

// mintOptions describes one token. RoleClaim matches the server's
// server.auth.db_role_claim_name.
type mintOptions struct {
	Issuer    string
	Audience  []string
	Subject   string
	Role      string
	RoleClaim string
	KID       string
	TTL       time.Duration
	Now       time.Time
}

func runMint(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	keyPath := fs.String("key", ".auth/jwt_private.pem", "Path to RSA private key (PEM)")
	issuer := fs.String("issuer", "https://localhost:9000", "Token issuer")
	audience := fs.StringSlice("audience", []string{"relquery"}, "Token audience")
	subject := fs.String("subject", "dev-user", "Token subject")
	role := fs.String("role", "", "Database role placed in the role claim")
	roleClaim := fs.String("role-claim", "db_role", "Name of the role claim")
	kid := fs.String("kid", "local-key", "Key ID")
	ttl := fs.Duration("expires", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadPrivateKey(*keyPath)
	if err != nil {
		return err
	}
	token, err := mintToken(key, mintOptions{
		Issuer:    *issuer,
		Audience:  *audience,
		Subject:   *subject,
		Role:      *role,
		RoleClaim: *roleClaim,
		KID:       *kid,
		TTL:       *ttl,
		Now:       time.Now(),
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, token)
	return nil
}

func mintToken(key *rsa.PrivateKey, opts mintOptions) (string, error) {
	if opts.TTL <= 0 {
		return "", errors.New("token lifetime must be positive")
	}
	if len(opts.Audience) == 0 {
		return "", errors.New("audience is required")
	}
	claims := jwt.MapClaims{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": opts.Audience,
		"iat": opts.Now.Unix(),
		"exp": opts.Now.Add(opts.TTL).Unix(),
		"nbf": opts.Now.Add(-time.Minute).Unix(),
	}
	if opts.Role != "" {
		claim := opts.RoleClaim
		if claim == "" {
			claim = "db_role"
		}
		claims[claim] = opts.Role
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = opts.KID
	return token.SignedString(key)
}

func runServe(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	addr := fs.String("addr", ":9000", "Listen address")
	issuer := fs.String("issuer", "https://localhost:9000", "Issuer URL advertised in discovery")
	publicKeyPath := fs.String("public-key", ".auth/jwt_public.pem", "Path to RSA public key (PEM)")
	kid := fs.String("kid", "local-key", "Key ID to advertise")
	certPath := fs.String("tls-cert", ".auth/issuer_tls.crt", "TLS certificate, generated when missing")
	keyPath := fs.String("tls-key", ".auth/issuer_tls.key", "TLS key, generated when missing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadPublicKey(*publicKeyPath)
	if err != nil {
		return err
	}
	mux, err := issuerMux(*issuer, key, *kid)
	if err != nil {
		return err
	}
	if err := ensureTLSFiles(*certPath, *keyPath); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "issuer listening on https://%s\n", *addr)
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServeTLS(*certPath, *keyPath)
}

// issuerMux serves the two documents go-oidc fetches: discovery and JWKS.
func issuerMux(issuer string, key *rsa.PublicKey, kid string) (*http.ServeMux, error) {
	issuer = strings.TrimRight(issuer, "/")
	keys, err := buildJWKS(key, kid)
	if err != nil {
		return nil, err
	}
	discovery, err := json.Marshal(map[string]any{
		"issuer":                                issuer,
		"jwks_uri":                              issuer + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(discovery)
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keys)
	})
	return mux, nil
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func buildJWKS(key *rsa.PublicKey, kid string) ([]byte, error) {
	e := big.NewInt(int64(key.E)).Bytes()
	return json.Marshal(struct {
		Keys []jwk `json:"keys"`
	}{Keys: []jwk{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(e),
	}}})
}

func writeKeyPair(dir string, bits int) (string, string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	privatePath := filepath.Join(dir, "jwt_private.pem")
	publicPath := filepath.Join(dir, "jwt_public.pem")
	if err := writePEM(privatePath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
		return "", "", err
	}
	if err := writePEM(publicPath, "PUBLIC KEY", publicDER, 0o644); err != nil {
		return "", "", err
	}
	return privatePath, publicPath, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readPEM(path, what string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode %s PEM", what)
	}
	return block, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path, "private key")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path, "public key")
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}

// ensureTLSFiles writes a self-signed localhost certificate unless both
// files already exist. The server's oidc_ca_file should point at the cert.
func ensureTLSFiles(certPath, keyPath string) error {
	if fileExists(certPath) && fileExists(keyPath) {
		return nil
	}
	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate tls key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return fmt.Errorf("failed to generate tls serial: %w", err)
	}
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create tls certificate: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", der, 0o644); err != nil {
		return err
	}
	return writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
