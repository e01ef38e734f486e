// Package sops recognises SOPS documents stored in ConfigMaps, Secrets or mounted files and
// decrypts them with whatever key access the process has (KMS, age, PGP).
package sops

import (
	"errors"
	"fmt"

	"github.com/getsops/sops/v3/decrypt"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported sops format")

// Decrypter decrypts SOPS documents and passes plain ones through unchanged
type Decrypter struct{}

// Decrypt returns the plaintext of data, a "yaml" or "json" document
func (Decrypter) Decrypt(data []byte, format string) ([]byte, error) {
	if !IsEncrypted(data) {
		return data, nil
	}
	if format != "yaml" && format != "json" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	plain, err := decrypt.Data(data, format)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s document: %w", format, err)
	}
	log.Debug().Msgf("Decrypted %s document", format)
	return plain, nil
}

// IsEncrypted reports whether the document carries a top-level sops metadata block. JSON
// documents are YAML too, so one check covers both.
func IsEncrypted(data []byte) bool {
	var doc struct {
		Sops *yaml.Node `yaml:"sops"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false
	}
	return doc.Sops != nil
}
