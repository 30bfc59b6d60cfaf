package db

import (
	"testing"
	"testing/fstest"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestPendingFiles_SortsAndSkipsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_notifications.up.sql":  {Data: []byte("SELECT 1")},
		"0001_init.up.sql":           {Data: []byte("SELECT 1")},
		"0001_init.down.sql":         {Data: []byte("SELECT 1")},
		"0003_payments_index.up.sql": {Data: []byte("SELECT 1")},
		"README.md":                  {Data: []byte("docs")},
	}

	files, err := PendingFiles(fsys, map[string]bool{"0002": true})
	assert.NoError(t, err)
	check.Equal(t, []string{"0001_init.up.sql", "0003_payments_index.up.sql"}, files)
}

func TestVersion(t *testing.T) {
	check.Equal(t, "0001", Version("0001_init.up.sql"))
	check.Equal(t, "weird.sql", Version("weird.sql"))
}
