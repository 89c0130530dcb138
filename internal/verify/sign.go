package verify

import (
	"bytes"
	"crypto"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// LoadOrGenerateKey loads an armored private key from keyFile, or
// generates a fresh one when keyFile is empty.
func LoadOrGenerateKey(keyFile string) (*openpgp.Entity, error) {
	if keyFile == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		return generateKey("rskachka verifier", fmt.Sprintf("verify@%s", hostname))
	}

	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading gpg key file: %w", err)
	}
	block, err := armor.Decode(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("decoding gpg key: %w", err)
	}
	entity, err := openpgp.ReadEntity(packet.NewReader(block.Body))
	if err != nil {
		return nil, fmt.Errorf("reading gpg entity: %w", err)
	}
	return entity, nil
}

func generateKey(name, email string) (*openpgp.Entity, error) {
	config := &packet.Config{RSABits: 2048, DefaultHash: crypto.SHA256}
	entity, err := openpgp.NewEntity(name, "rskachka store manifest", email, config)
	if err != nil {
		return nil, err
	}
	for _, id := range entity.Identities {
		if err := id.SelfSignature.SignUserId(id.UserId.Id, entity.PrimaryKey, entity.PrivateKey, config); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

// Sign returns an armored OpenPGP signature over data, using entity's
// private key.
func Sign(entity *openpgp.Entity, data []byte) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.SignatureType, nil)
	if err != nil {
		return "", err
	}
	signWriter, err := openpgp.Sign(w, entity, nil, nil)
	if err != nil {
		return "", err
	}
	if _, err := signWriter.Write(data); err != nil {
		return "", err
	}
	if err := signWriter.Close(); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// KeyID formats entity's primary key ID the way the manifest expects.
func KeyID(entity *openpgp.Entity) string {
	return fmt.Sprintf("0x%X", entity.PrimaryKey.KeyId)
}
