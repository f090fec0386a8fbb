// Package tlsconf derives matching TLS configurations from a shared token.
//
// Both ends derive the same ECDSA P-256 key from the token. The server
// presents a throwaway self-signed certificate for that key and the client
// accepts it only if the public key matches its own derivation. There is no
// CA and nothing to distribute beyond the token.
//
//	HKDF-SHA256(ikm=token, salt="clipkeep-tls-v1", info="private-key")
//	→ 48 bytes → reduced into [1, N-1] → P-256 private scalar
package tlsconf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/hkdf"
	"google.golang.org/grpc/credentials"
)

// ServerName is the name both sides agree on for SNI.
const ServerName = "clipkeep"

// ErrKeyMismatch is returned by the client handshake when the server holds
// a key derived from a different token.
var ErrKeyMismatch = errors.New("server public key does not match token")

// Pair holds the two halves of a token-derived TLS setup.
type Pair struct {
	// Server is for tls.NewListener. It offers h2 and http/1.1 so gRPC and
	// the HTTP API can share a listener.
	Server *tls.Config
	// Client verifies the server by public key.
	Client *tls.Config
}

// New derives the Pair for token.
func New(token string) (*Pair, error) {
	if token == "" {
		return nil, errors.New("tlsconf: empty token")
	}
	key, err := deriveKey(token)
	if err != nil {
		return nil, errors.Wrap(err, "tlsconf: derive key")
	}
	der, err := selfSigned(key)
	if err != nil {
		return nil, errors.Wrap(err, "tlsconf: certificate")
	}
	want, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "tlsconf: public key")
	}

	return &Pair{
		Server: &tls.Config{
			Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS13,
		},
		Client: &tls.Config{
			// Chain verification is replaced by the public key check below.
			InsecureSkipVerify: true, //nolint:gosec
			ServerName:         ServerName,
			MinVersion:         tls.VersionTLS13,
			VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
				return verifyKey(raw, want)
			},
		},
	}, nil
}

// Credentials returns gRPC transport credentials for the client half.
func (p *Pair) Credentials() credentials.TransportCredentials {
	return credentials.NewTLS(p.Client.Clone())
}

func verifyKey(raw [][]byte, want []byte) error {
	if len(raw) == 0 {
		return errors.New("tlsconf: server presented no certificate")
	}
	cert, err := x509.ParseCertificate(raw[0])
	if err != nil {
		return errors.Wrap(err, "tlsconf: parse server certificate")
	}
	got, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return errors.Wrap(err, "tlsconf: server public key")
	}
	if !bytes.Equal(got, want) {
		return ErrKeyMismatch
	}
	return nil
}

func deriveKey(token string) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, []byte(token), []byte("clipkeep-tls-v1"), []byte("private-key"))
	buf := make([]byte, 48)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	n := elliptic.P256().Params().N
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(n, big.NewInt(1)))
	k.Add(k, big.NewInt(1))

	return ecdsa.ParseRawPrivateKey(elliptic.P256(), k.FillBytes(make([]byte, 32)))
}

// selfSigned returns a DER certificate for key. Only the public key matters
// to clients; serial and validity are arbitrary.
func selfSigned(key *ecdsa.PrivateKey) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: ServerName},
		DNSNames:              []string{ServerName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	return x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
}
