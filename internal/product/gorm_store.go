package product

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB is the postgres-backed Store.
type DB struct {
	db *gorm.DB
}

func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open product db: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) ProductForAuction(ctx context.Context, id string) (Product, error) {
	var p Product
	err := d.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("lookup product %s: %w", id, err)
	}
	return p, nil
}
