package product

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no product row exists for the id.
var ErrNotFound = errors.New("product not found")

// Product is the slice of product metadata an auction needs: starting price,
// the per-conclusion increment and the total operating time in seconds.
type Product struct {
	ID          string `gorm:"primaryKey;column:id"`
	Price       int64  `gorm:"column:price"`
	PerPrice    int64  `gorm:"column:per_price"`
	OperateTime int64  `gorm:"column:operate_time"`
}

func (Product) TableName() string { return "products" }

// Store is the read-only product lookup the registry consults before opening
// an auction. A lookup failure aborts the open with no partial state.
type Store interface {
	ProductForAuction(ctx context.Context, id string) (Product, error)
}
