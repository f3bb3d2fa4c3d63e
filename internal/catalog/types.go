package catalog

import "time"

// User is a User node. PasswordHash is only populated on the auth path and
// never serialized.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Age          int64  `json:"age"`
	PasswordHash string `json:"-"`
}

// UserUpdate carries the optional fields of a partial user update. Nil fields
// keep the stored value.
type UserUpdate struct {
	Name         *string
	Email        *string
	Age          *int64
	PasswordHash *string
}

// Product is a Product node.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Brand is a Brand node.
type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Category is a Category node.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProductDetail is a product together with its OFFERED_BY brand and
// BELONGS_TO category. Brand and Category are nil when the product is
// unlinked; that is not an error.
type ProductDetail struct {
	Product
	Brand    *Brand    `json:"brand"`
	Category *Category `json:"category"`
}

// ScoredProduct is a ranking candidate produced by one of the two
// recommendation branches.
type ScoredProduct struct {
	ProductDetail
	Score float64 `json:"score"`
}

// Identity is the acting user resolved by the authentication gate.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Interaction edge types.
const (
	ActionViewed = "VIEWED"
	ActionLiked  = "LIKED"
	ActionBought = "BOUGHT"
)

// HistoryEntry is one interaction edge of a user's history.
type HistoryEntry struct {
	Action    string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Product   Product   `json:"product"`
}

// PurchaseResult reports the state after a successful purchase.
type PurchaseResult struct {
	NewStock int64 `json:"newStock"`
	Quantity int64 `json:"quantity"`
}

// Filter is the optional predicate set for catalog queries. Empty fields mean
// no restriction. Text matching is case-insensitive: Query is containment on
// the product name and description, Brand and Category are name equality.
type Filter struct {
	Query    string
	Brand    string
	Category string
}

// IsZero reports whether no predicate is set.
func (f Filter) IsZero() bool {
	return f.Query == "" && f.Brand == "" && f.Category == ""
}
