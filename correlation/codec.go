package correlation

import (
	"strings"
	"unicode"

	"goflare.io/storecredit/errs"
)

// maxCodeLength is the longest discount code Shopify accepts.
const maxCodeLength = 255

// Codec embeds an external customer identity in a discount code. The code is
// the system of record: Decode(Encode(id)) == id for every valid id.
// Matching is case sensitive.
type Codec struct {
	prefix string
}

func NewCodec(prefix string) Codec {
	return Codec{prefix: prefix}
}

func (c Codec) Prefix() string { return c.prefix }

func (c Codec) Encode(externalCustomerID string) (string, error) {
	if err := c.validate(externalCustomerID); err != nil {
		return "", err
	}
	return c.prefix + externalCustomerID, nil
}

// Matches reports whether code follows the credit code convention.
func (c Codec) Matches(code string) bool {
	return len(code) > len(c.prefix) && strings.HasPrefix(code, c.prefix)
}

func (c Codec) Decode(code string) (string, error) {
	if !c.Matches(code) {
		return "", errs.NotFound("code %q does not carry a credit identity", code)
	}
	id := strings.TrimPrefix(code, c.prefix)
	if err := c.validate(id); err != nil {
		return "", errs.NotFound("code %q carries an invalid identity", code)
	}
	return id, nil
}

func (c Codec) validate(id string) error {
	if id == "" {
		return errs.InvalidInput("customer id is required")
	}
	if len(c.prefix)+len(id) > maxCodeLength {
		return errs.InvalidInput("customer id is too long for a discount code")
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errs.InvalidInput("customer id must not contain whitespace or control characters")
		}
	}
	return nil
}
