package uuid

import (
	"github.com/google/uuid"
)

// bookingNamespace scopes name-based ids derived from booking ids.
var bookingNamespace = uuid.MustParse("6f1c2d8e-2b7a-4f0e-9a43-5d0c1b7e9a21")

// New generates a new UUID v4
func New() string {
	return uuid.New().String()
}

// Derive returns a stable UUID v5 for (kind, key). The same pair always
// yields the same id, so retried operations land on the same record.
func Derive(kind, key string) string {
	return uuid.NewSHA1(bookingNamespace, []byte(kind+":"+key)).String()
}
