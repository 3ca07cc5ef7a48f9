package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString extracts the string part of a record id. All orchestrator
// records are created with uuid string ids, so anything else is a bug.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record id type: %T", id.ID)
	}
	return s, nil
}

// MustRecordIDString is RecordIDString for rows already read back from the
// store, where a non-string id cannot occur.
func MustRecordIDString(id surrealmodels.RecordID) string {
	s, err := RecordIDString(id)
	if err != nil {
		panic(err)
	}
	return s
}
