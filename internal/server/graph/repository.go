package graph

import (
	"context"

	"github.com/systemshift/shopgraph/internal/catalog"
)

// Repository defines the interface for graph storage backends.
// Both SQLite and Neo4j implement this interface. The acting identity is
// always an explicit parameter; the store never reads ambient request state.
type Repository interface {
	// Lifecycle
	Close(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error

	// User nodes
	CreateUser(ctx context.Context, u *catalog.User) error
	GetUser(ctx context.Context, id string) (*catalog.User, error)
	// GetUserByEmail returns the user including its password hash. Auth path
	// only; handlers must never serialize the result directly.
	GetUserByEmail(ctx context.Context, email string) (*catalog.User, error)
	UpdateUser(ctx context.Context, id string, upd catalog.UserUpdate) (*catalog.User, error)
	// GetUserHistory returns the raw VIEWED/LIKED/BOUGHT edge list for a user,
	// one entry per edge. Callers collapse it with catalog.DedupeHistory.
	GetUserHistory(ctx context.Context, userID string) ([]catalog.HistoryEntry, error)

	// Brand and Category nodes
	CreateBrand(ctx context.Context, b *catalog.Brand) error
	GetBrand(ctx context.Context, id string) (*catalog.Brand, error)
	ListBrands(ctx context.Context) ([]catalog.Brand, error)
	CreateCategory(ctx context.Context, c *catalog.Category) error
	GetCategory(ctx context.Context, id string) (*catalog.Category, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)

	// Product nodes. The OFFERED_BY and BELONGS_TO edges are created once at
	// product creation and never change afterwards.
	CreateProduct(ctx context.Context, p *catalog.Product, brandID, categoryID string) error
	GetProduct(ctx context.Context, id string) (*catalog.ProductDetail, error)
	FindProducts(ctx context.Context, f catalog.Filter) ([]catalog.ProductDetail, error)

	// Interaction edges
	RecordView(ctx context.Context, userID, productID string) error
	ToggleLike(ctx context.Context, userID, productID string) (bool, error)
	// Purchase is a single conditional read-modify-write executed by the
	// store: it requires stock > 0, decrements stock by one and upserts the
	// BOUGHT edge atomically. Two concurrent purchases against the last unit
	// cannot both succeed.
	Purchase(ctx context.Context, userID, productID string) (*catalog.PurchaseResult, error)

	// Ranking branches
	PopularProducts(ctx context.Context) ([]catalog.ScoredProduct, error)
	// RecommendationsFor returns the one-hop collaborative-filtering branch
	// for a user; empty when the user has no interaction history.
	RecommendationsFor(ctx context.Context, userID string) ([]catalog.ScoredProduct, error)
}
