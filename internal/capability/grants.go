package capability

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Table maps a bearer token to the capability Set it grants. It is the
// permission oracle spec §1 treats as an external collaborator, bound
// here to a static file loaded at startup.
type Table map[string]Set

// LoadGrantsFile reads a JSONC file of the form:
//
//	{
//	  "tokens": {
//	    "<token>": ["axon:get", "axon:has"]
//	  }
//	}
//
// into a Table. A missing file yields an empty Table rather than an
// error, since grants are optional for single-user/local deployments.
func LoadGrantsFile(path string) (Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}

		return nil, fmt.Errorf("capability: read grants file %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("capability: invalid JSONC in %s: %w", path, err)
	}

	var doc struct {
		Tokens map[string][]string `json:"tokens"`
	}

	if err := json.Unmarshal(standardized, &doc); err != nil {
		return nil, fmt.Errorf("capability: invalid JSON in %s: %w", path, err)
	}

	table := make(Table, len(doc.Tokens))

	for token, grants := range doc.Tokens {
		table[token] = NewSet(grants...)
	}

	return table, nil
}

// Lookup returns the Set granted to token, or an empty Set if the token
// is unknown — unknown tokens are denied every capability rather than
// rejected outright, so callers get a uniform "capability: denied"
// error instead of a separate auth-failure path.
func (t Table) Lookup(token string) Set {
	if set, ok := t[token]; ok {
		return set
	}

	return Set{}
}
