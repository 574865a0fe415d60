package catalog

import "time"

// Category is the fixed product category enum.
type Category string

const (
	CategoryLaptop      Category = "laptop"
	CategoryAccessories Category = "accessories"
	CategoryServices    Category = "services"
	CategorySoftware    Category = "software"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLaptop, CategoryAccessories, CategoryServices, CategorySoftware:
		return true
	}
	return false
}

// Offer describes a running discount on a product.
type Offer struct {
	DiscountPercent float64    `json:"discountPercent" dynamodbav:"discount_percent" validate:"gte=0,lte=100" yaml:"discountPercent"`
	ValidUntil      *time.Time `json:"validUntil,omitempty" dynamodbav:"valid_until,omitempty" yaml:"validUntil,omitempty"`
	Description     string     `json:"description,omitempty" dynamodbav:"description,omitempty" validate:"max=500" yaml:"description,omitempty"`
}

// Rating is the aggregate customer rating.
type Rating struct {
	Average float64 `json:"average" dynamodbav:"average"`
	Count   int     `json:"count" dynamodbav:"count"`
}

// Product is an item in the products table.
type Product struct {
	ID             string            `json:"id" dynamodbav:"product_id"`
	Name           string            `json:"name" dynamodbav:"name"`
	Description    string            `json:"description" dynamodbav:"description"`
	Price          float64           `json:"price" dynamodbav:"price"`
	OriginalPrice  *float64          `json:"originalPrice,omitempty" dynamodbav:"original_price,omitempty"`
	Category       Category          `json:"category" dynamodbav:"category"`
	Images         []string          `json:"images" dynamodbav:"images,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty" dynamodbav:"specifications,omitempty"`
	Stock          int               `json:"stock" dynamodbav:"stock"`
	IsActive       bool              `json:"isActive" dynamodbav:"is_active"`
	HasOffer       bool              `json:"hasOffer" dynamodbav:"has_offer"`
	Offer          *Offer            `json:"offer,omitempty" dynamodbav:"offer,omitempty"`
	Brand          string            `json:"brand,omitempty" dynamodbav:"brand,omitempty"`
	Model          string            `json:"model,omitempty" dynamodbav:"model,omitempty"`
	Warranty       string            `json:"warranty,omitempty" dynamodbav:"warranty,omitempty"`
	Rating         Rating            `json:"rating" dynamodbav:"rating"`
	CreatedAt      time.Time         `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt" dynamodbav:"updated_at"`
}

// ProductInput is the admin create/update payload. Pointer fields are
// required so that zero values can be told apart from missing ones.
type ProductInput struct {
	Name           string            `json:"name" validate:"required,max=200" yaml:"name"`
	Description    string            `json:"description" validate:"max=5000" yaml:"description"`
	Price          *float64          `json:"price" validate:"required,gte=0" yaml:"price"`
	OriginalPrice  *float64          `json:"originalPrice,omitempty" validate:"omitempty,gte=0" yaml:"originalPrice,omitempty"`
	Category       Category          `json:"category" validate:"required,oneof=laptop accessories services software" yaml:"category"`
	Images         []string          `json:"images" validate:"max=20,dive,required" yaml:"images"`
	Specifications map[string]string `json:"specifications" yaml:"specifications"`
	Stock          *int              `json:"stock" validate:"required,gte=0" yaml:"stock"`
	IsActive       *bool             `json:"isActive" yaml:"isActive"`
	HasOffer       bool              `json:"hasOffer" yaml:"hasOffer"`
	Offer          *Offer            `json:"offer,omitempty" validate:"required_if=HasOffer true" yaml:"offer,omitempty"`
	Brand          string            `json:"brand,omitempty" validate:"max=100" yaml:"brand,omitempty"`
	Model          string            `json:"model,omitempty" validate:"max=100" yaml:"model,omitempty"`
	Warranty       string            `json:"warranty,omitempty" validate:"max=100" yaml:"warranty,omitempty"`
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Category   Category
	OffersOnly bool
	ActiveOnly bool
}
