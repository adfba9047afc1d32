package push

import (
	"crypto/x509"
	"fmt"
	"os"
)

// loadCertPool reads a PEM file of trust anchors from path.
func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("push: no certificates found in %s", path)
	}
	return pool, nil
}
