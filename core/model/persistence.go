package model

import (
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// SaveModelToWriter gob-encodes m. A pipeline holds its stages behind
// interfaces, so every stage type must be gob.Register'ed by its package.
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "encode model")
	}
	return nil
}

// LoadModelFromReader decodes into m, which must be a pointer.
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "decode model")
	}
	return nil
}
