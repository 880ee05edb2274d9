package store

import "fmt"

func errNotFound(kind, id string) error {
	return fmt.Errorf("store: %s %q not found", kind, id)
}

func errConflict(kind, id string) error {
	return fmt.Errorf("store: %s %q already exists", kind, id)
}
