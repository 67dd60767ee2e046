// Package tlstest generates throwaway certificates for tests that need mTLS.
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Files holds the paths of the generated PEM files.
type Files struct {
	CACert       string
	ServerCert   string
	ServerKey    string
	OperatorCert string
	OperatorKey  string
	ViewerCert   string
	ViewerKey    string
}

type issuer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// WriteCerts creates a CA, a server certificate for localhost/127.0.0.1 and
// two client certificates whose OU is "operator" and "viewer" respectively.
// Files are written to a temporary directory removed when the test ends.
func WriteCerts(t testing.TB) Files {
	t.Helper()

	dir := t.TempDir()
	serial := int64(1)

	nextSerial := func() *big.Int {
		serial++
		return big.NewInt(serial)
	}

	caKey := newKey(t)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "wardensh test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA certificate: %v", err)
	}

	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA certificate: %v", err)
	}

	ca := issuer{cert: caCert, key: caKey}

	files := Files{CACert: filepath.Join(dir, "ca.crt")}
	writePEM(t, files.CACert, "CERTIFICATE", caDER)

	files.ServerCert, files.ServerKey = ca.issue(t, dir, "server", &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})

	files.OperatorCert, files.OperatorKey = ca.issue(t, dir, "client-operator", &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:         "alice",
			OrganizationalUnit: []string{"operator"},
		},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})

	files.ViewerCert, files.ViewerKey = ca.issue(t, dir, "client-viewer", &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:         "bob",
			OrganizationalUnit: []string{"viewer"},
		},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})

	return files
}

func (ca issuer) issue(
	t testing.TB,
	dir string,
	name string,
	template *x509.Certificate,
) (string, string) {
	t.Helper()

	key := newKey(t)

	template.NotBefore = time.Now().Add(-time.Hour)
	template.NotAfter = time.Now().Add(24 * time.Hour)
	template.KeyUsage = x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		t.Fatalf("create %s certificate: %v", name, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal %s key: %v", name, err)
	}

	certPath := filepath.Join(dir, name+".crt")
	keyPath := filepath.Join(dir, name+".key")

	writePEM(t, certPath, "CERTIFICATE", der)
	writePEM(t, keyPath, "EC PRIVATE KEY", keyDER)

	return certPath, keyPath
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return key
}

func writePEM(t testing.TB, path, blockType string, der []byte) {
	t.Helper()

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
