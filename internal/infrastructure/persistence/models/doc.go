// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities carry no GORM tags
// 2. Persistence models contain all GORM annotations and table mappings
// 3. ToDomain / XModelFromDomain convert between the two
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: BaseModel and AggregateModel
// - document.go: financial documents with line items, payments and audit entries
// - funding.go: funding sources
// - credit.go: credit accounts and their transactions
// - settlement.go: settlements with legs and allocation records
package models
