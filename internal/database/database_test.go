package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/epubshelf/internal/entities"
)

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	db, err := NewQuietDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping())
	assert.True(t, db.DB.Migrator().HasTable(&entities.Book{}))
	assert.True(t, db.DB.Migrator().HasTable(&entities.SyncRun{}))
	assert.True(t, db.DB.Migrator().HasIndex(&entities.Book{}, "idx_books_title_author"))
}

func TestNewDatabase_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	db, err := NewQuietDatabase(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.DB.Create(&entities.Book{Title: "Dune", Author: "Herbert"}).Error)
	require.NoError(t, db.Close())

	db, err = NewQuietDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int64
	require.NoError(t, db.DB.Model(&entities.Book{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTitleAuthorUniqueness(t *testing.T) {
	db, err := NewQuietDatabase(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.DB.Create(&entities.Book{Title: "Dune", Author: "Herbert"}).Error)
	assert.Error(t, db.DB.Create(&entities.Book{Title: "Dune", Author: "Herbert"}).Error)
	assert.NoError(t, db.DB.Create(&entities.Book{Title: "Dune", Author: "Someone Else"}).Error)
}
