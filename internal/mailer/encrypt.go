package mailer

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/smallstep/pkcs7"
)

// pgpEnvelope wraps an already-composed MIME body in a
// multipart/encrypted envelope, encrypting to the recipient's
// armored public key.
func pgpEnvelope(publicKey string, body []byte) ([]byte, error) {
	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(publicKey))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	var armored bytes.Buffer
	armorer, err := armor.Encode(&armored, "PGP MESSAGE", nil)
	if err != nil {
		return nil, fmt.Errorf("start armor: %w", err)
	}
	plaintext, err := openpgp.Encrypt(armorer, ring, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("start encryption: %w", err)
	}
	if _, err := plaintext.Write(body); err != nil {
		return nil, fmt.Errorf("encrypt body: %w", err)
	}
	if err := plaintext.Close(); err != nil {
		return nil, fmt.Errorf("finish encryption: %w", err)
	}
	if err := armorer.Close(); err != nil {
		return nil, fmt.Errorf("finish armor: %w", err)
	}

	boundary := multipartBoundary()
	var out bytes.Buffer
	fmt.Fprintf(&out, "Content-Type: multipart/encrypted; protocol=\"application/pgp-encrypted\"; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&out, "--%s\r\n", boundary)
	out.WriteString("Content-Type: application/pgp-encrypted\r\n\r\n")
	out.WriteString("Version: 1\r\n")
	fmt.Fprintf(&out, "\r\n--%s\r\n", boundary)
	out.WriteString("Content-Type: application/octet-stream\r\n\r\n")
	out.Write(armored.Bytes())
	fmt.Fprintf(&out, "\r\n--%s--\r\n", boundary)
	return out.Bytes(), nil
}

// smimeEnvelope wraps an already-composed MIME body in a base64
// application/x-pkcs7-mime envelope for the recipient's certificate.
func smimeEnvelope(certificate string, body []byte) ([]byte, error) {
	block, _ := pem.Decode([]byte(certificate))
	if block == nil {
		return nil, fmt.Errorf("no PEM certificate found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	encrypted, err := pkcs7.Encrypt(body, []*x509.Certificate{cert})
	if err != nil {
		return nil, fmt.Errorf("pkcs7 encrypt: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("Content-Type: application/x-pkcs7-mime; smime-type=enveloped-data; name=\"smime.p7m\"\r\n")
	out.WriteString("Content-Disposition: attachment; filename=\"smime.p7m\"\r\n")
	out.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64(&out, encrypted)
	return out.Bytes(), nil
}
