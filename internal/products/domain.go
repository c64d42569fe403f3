package products

import "time"

// LowStockThreshold is the quantity below which a product counts as low stock.
const LowStockThreshold = 10

// Product represents a product entity.
type Product struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	CreatedBy   *string   `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateInput is the payload for creating a product.
type CreateInput struct {
	Code        string   `json:"code" validate:"required,productcode"`
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Quantity    *int     `json:"quantity" validate:"required,gte=0"`
	Price       *float64 `json:"price" validate:"required,gte=0.01"`
}

// UpdateInput is a partial product edit. Nil fields are left unchanged.
type UpdateInput struct {
	Code        *string  `json:"code" validate:"omitempty,productcode"`
	Name        *string  `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Quantity    *int     `json:"quantity" validate:"omitempty,gte=0"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0.01"`
}

func (in UpdateInput) empty() bool {
	return in.Code == nil && in.Name == nil && in.Description == nil && in.Quantity == nil && in.Price == nil
}

// NewProduct is a sanitized product ready for insertion.
type NewProduct struct {
	Code        string
	Name        string
	Description *string
	Quantity    int
	Price       float64
	CreatedByID *int64
}

// Changes is a sanitized partial update.
type Changes struct {
	Code        *string
	Name        *string
	Description *string
	Quantity    *int
	Price       *float64
}

// Stats summarises the catalogue.
type Stats struct {
	TotalProducts int64   `json:"totalProducts"`
	TotalQuantity int64   `json:"totalQuantity"`
	AveragePrice  float64 `json:"averagePrice"`
	MinPrice      float64 `json:"minPrice"`
	MaxPrice      float64 `json:"maxPrice"`
	LowStockCount int64   `json:"lowStockCount"`
}
