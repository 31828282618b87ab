// Package banks provides the read-only table of Czech banks keyed by their
// 4-digit clearing code, used to fill in bank name and SWIFT/BIC for an
// account number.
package banks

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

//go:embed banks.json
var defaultBanks []byte

// Bank is one entry of the reference table.
type Bank struct {
	ClearingCode string `json:"code"`
	Name         string `json:"name"`
	Swift        string `json:"swift"`
}

// Table is an immutable lookup table. The zero value is an empty table.
type Table struct {
	byCode map[string]Bank
	list   []Bank
}

// Default returns the table compiled into the binary.
func Default() *Table {
	t, err := Parse(defaultBanks)
	if err != nil {
		panic(fmt.Sprintf("banks: embedded table is invalid: %v", err))
	}
	return t
}

// Load reads a table from a JSON file. An empty path or a missing file
// yields the default table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read banks file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of banks. Later duplicates of a clearing code
// replace earlier ones.
func Parse(data []byte) (*Table, error) {
	var list []Bank
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse banks: %w", err)
	}
	t := &Table{byCode: make(map[string]Bank, len(list))}
	for _, b := range list {
		if b.ClearingCode == "" {
			continue
		}
		t.byCode[b.ClearingCode] = b
	}
	t.list = make([]Bank, 0, len(t.byCode))
	for _, b := range t.byCode {
		t.list = append(t.list, b)
	}
	sort.Slice(t.list, func(i, j int) bool { return t.list[i].ClearingCode < t.list[j].ClearingCode })
	return t, nil
}

// Lookup returns the bank for a clearing code.
func (t *Table) Lookup(code string) (Bank, bool) {
	if t == nil {
		return Bank{}, false
	}
	b, ok := t.byCode[code]
	return b, ok
}

// All returns the banks ordered by clearing code.
func (t *Table) All() []Bank {
	if t == nil {
		return nil
	}
	out := make([]Bank, len(t.list))
	copy(out, t.list)
	return out
}
