package postgres

import (
	"fmt"
	"strings"

	"github.com/mindgate/intake/store"
)

// placeholder returns a placeholder for PostgreSQL (uses $1, $2, ...).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders for PostgreSQL.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func encodeField(v any) (string, error) {
	return store.EncodeField(v)
}
