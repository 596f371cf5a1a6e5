// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── books/           # Local catalog store (book records and blobs)
//	└── syncruns/        # Reconciliation history
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./epubshelf.db")
//
//	booksRepo := books.NewRepository(db.DB)
//	runsRepo := syncruns.NewRepository(db.DB)
//
//	book, err := booksRepo.GetByID(123)
//
// # Interface Implementations
//
//   - books.Repository: implements catalogsync.LocalStore and library.BookStore
//   - syncruns.Repository: implements catalogsync.RunRecorder
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Implement the required interface
//  5. Add compile-time interface check in internal/interfaces/checks.go
package database
