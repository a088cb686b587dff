package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/jsonc"
)

// Load reads the bridge document at path and validates it.
// Read failures wrap ErrConfigIO, malformed documents ErrConfigSyntax and
// schema violations are returned as *FieldError (ErrConfigSemantic).
// No partial configuration is ever returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigIO, path, err)
	}
	return Parse(data)
}

// Parse validates an in-memory document. Comments and trailing commas are
// tolerated; everything else must be plain JSON.
func Parse(data []byte) (*Config, error) {
	root, err := decodeTree(data)
	if err != nil {
		return nil, err
	}
	v := newValidator()
	return v.document(root)
}

// decodeTree turns the raw bytes into a generic node tree: objects are
// map[string]any, arrays []any, numbers json.Number.
func decodeTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrConfigSyntax)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigSyntax, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrConfigSyntax)
	}
	return root, nil
}
