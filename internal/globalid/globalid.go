// Package globalid translates local numeric ids into the opaque tokens
// exposed to HTTP clients and back.
package globalid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Entity kinds used in tokens
const (
	KindCategory      = "ProductCategory"
	KindComponent     = "ProductComponent"
	KindOption        = "ComponentOption"
	KindRule          = "ProductComponentRule"
	KindConfiguration = "ProductConfiguration"
	KindOrder         = "CustomerOrder"
)

const separator = "::"

var ErrMalformed = errors.New("malformed global id")

// Encode returns the token for an entity kind and local id
func Encode(kind string, localID int64) string {
	return base64.StdEncoding.EncodeToString([]byte(kind + separator + strconv.FormatInt(localID, 10)))
}

// Decode recovers the entity kind and local id of a token
func Decode(token string) (string, int64, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	kind, local, ok := strings.Cut(string(raw), separator)
	if !ok || kind == "" {
		return "", 0, fmt.Errorf("%w: missing kind", ErrMalformed)
	}

	id, err := strconv.ParseInt(local, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return kind, id, nil
}

// DecodeAs decodes a token and checks it refers to the expected kind
func DecodeAs(kind, token string) (int64, error) {
	got, id, err := Decode(token)
	if err != nil {
		return 0, err
	}
	if got != kind {
		return 0, fmt.Errorf("%w: expected %s, got %s", ErrMalformed, kind, got)
	}
	return id, nil
}
