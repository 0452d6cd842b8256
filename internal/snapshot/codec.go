package snapshot

import (
	"fmt"
	"strings"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
)

const (
	jsonExtension      = ".json"
	encryptedExtension = ".enc"
)

// Codec turns snapshots into stored bytes: JSON, then optional compression,
// then optional encryption. Reading infers both layers from the object name.
type Codec struct {
	Compression CompressionType
	Passphrase  []byte
	Catalog     *catalog.Catalog
}

// Suffix is the object name suffix of documents written by this codec
func (c Codec) Suffix() string {
	suffix := jsonExtension
	if comp, _ := CompressorFor(c.Compression); comp != nil {
		suffix += comp.Extension()
	}
	if len(c.Passphrase) > 0 {
		suffix += encryptedExtension
	}
	return suffix
}

// Marshal encodes s
func (c Codec) Marshal(s *Snapshot) ([]byte, error) {
	data, err := Encode(s)
	if err != nil {
		return nil, err
	}

	comp, err := CompressorFor(c.Compression)
	if err != nil {
		return nil, err
	}
	if comp != nil {
		if data, err = comp.Compress(data); err != nil {
			return nil, err
		}
	}

	if len(c.Passphrase) > 0 {
		enc, err := NewEncryptor(c.Passphrase)
		if err != nil {
			return nil, err
		}
		if data, err = enc.Encrypt(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Unmarshal decodes a document stored under name and verifies its checksum
func (c Codec) Unmarshal(name string, data []byte) (*Snapshot, error) {
	if strings.HasSuffix(name, encryptedExtension) {
		if len(c.Passphrase) == 0 {
			return nil, apperrors.NewSetupError(
				fmt.Sprintf("snapshot %s is encrypted; an encryption key is required", name), nil)
		}
		enc, err := NewEncryptor(c.Passphrase)
		if err != nil {
			return nil, err
		}
		if data, err = enc.Decrypt(data); err != nil {
			return nil, apperrors.NewSetupError(fmt.Sprintf("cannot read snapshot %s", name), err)
		}
		name = strings.TrimSuffix(name, encryptedExtension)
	}

	if dot := strings.LastIndex(name, "."); dot >= 0 {
		if t, ok := compressionForExtension(name[dot:]); ok {
			comp, _ := CompressorFor(t)
			var err error
			if data, err = comp.Decompress(data); err != nil {
				return nil, apperrors.NewSetupError(fmt.Sprintf("cannot read snapshot %s", name), err)
			}
		}
	}

	snap, err := Decode(data, c.Catalog)
	if err != nil {
		return nil, err
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return snap, nil
}
