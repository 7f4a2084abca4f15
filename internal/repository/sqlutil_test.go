package repository

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateKey(t *testing.T) {
	codeDup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'DRW-AAAA' for key 'draw_entries.uq_entry_code'"}
	entryDup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'u-1-d-1-p-1' for key 'draw_entries.uq_entry_user_drop_product'"}

	tests := []struct {
		name string
		err  error
		key  string
		want bool
	}{
		{"entry code index", codeDup, uqEntryCode, true},
		{"user drop product index", entryDup, uqEntryUserDropProduct, true},
		{"other index", codeDup, uqEntryUserDropProduct, false},
		{"any index", entryDup, "", true},
		{"wrapped", errors.Wrap(codeDup, "insert entry"), uqEntryCode, true},
		{"other mysql error", &mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"}, "", false},
		{"not a mysql error", errors.New("connection reset"), "", false},
		{"nil", nil, uqEntryCode, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicateKey(tt.err, tt.key))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
