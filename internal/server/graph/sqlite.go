package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/systemshift/shopgraph/internal/catalog"
)

// SQLiteRepository implements Repository using SQLite. It is the embedded
// backend for single-node deployments and the substitute store for tests.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite repository at the given path.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	// _txlock=immediate makes every transaction a writer from the start, so
	// concurrent purchases queue on the write lock instead of failing a
	// read-to-write upgrade. Pragmas travel in the DSN so every pooled
	// connection gets them.
	dsn := "file:" + dbPath +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the SQLite connection
func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

// EnsureIndexes creates necessary indexes (already created in schema)
func (r *SQLiteRepository) EnsureIndexes(ctx context.Context) error {
	return nil
}

// CreateUser creates a user row, rejecting duplicate emails.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *catalog.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, u.Email).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if n > 0 {
		return catalog.ErrEmailTaken
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, age, password) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Age, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return tx.Commit()
}

// GetUser retrieves a user by id, without its password hash.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*catalog.User, error) {
	u, err := r.scanUser(ctx, `SELECT id, name, email, age, password FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// GetUserByEmail retrieves a user by email including its password hash.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*catalog.User, error) {
	return r.scanUser(ctx, `SELECT id, name, email, age, password FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) scanUser(ctx context.Context, query, arg string) (*catalog.User, error) {
	var u catalog.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.Age, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// UpdateUser applies a partial update; unset fields keep the stored value.
// An email change colliding with another user fails with ErrEmailTaken, same
// as registration.
func (r *SQLiteRepository) UpdateUser(ctx context.Context, id string, upd catalog.UserUpdate) (*catalog.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if upd.Email != nil {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`, *upd.Email, id).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("checking email: %w", err)
		}
		if n > 0 {
			return nil, catalog.ErrEmailTaken
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET
			name     = COALESCE(:name, name),
			email    = COALESCE(:email, email),
			age      = COALESCE(:age, age),
			password = COALESCE(:password, password)
		WHERE id = :id`,
		sql.Named("name", optString(upd.Name)),
		sql.Named("email", optString(upd.Email)),
		sql.Named("age", optInt(upd.Age)),
		sql.Named("password", optString(upd.PasswordHash)),
		sql.Named("id", id))
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if rows == 0 {
		return nil, catalog.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user update: %w", err)
	}
	return r.GetUser(ctx, id)
}

// GetUserHistory returns the raw interaction edge list for a user.
func (r *SQLiteRepository) GetUserHistory(ctx context.Context, userID string) ([]catalog.HistoryEntry, error) {
	if err := r.requireRow(ctx, "users", userID); err != nil {
		return nil, err
	}

	query := `
		SELECT e.action, e.timestamp,
		       p.id, p.name, p.price, p.stock, p.image_url, p.description
		FROM (
			SELECT 'VIEWED' AS action, product_id, timestamp FROM viewed WHERE user_id = :uid
			UNION ALL
			SELECT 'LIKED', product_id, timestamp FROM liked WHERE user_id = :uid
			UNION ALL
			SELECT 'BOUGHT', product_id, timestamp FROM bought WHERE user_id = :uid
		) e
		JOIN products p ON p.id = e.product_id
	`
	rows, err := r.db.QueryContext(ctx, query, sql.Named("uid", userID))
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []catalog.HistoryEntry
	for rows.Next() {
		var e catalog.HistoryEntry
		var ts string
		if err := rows.Scan(&e.Action, &ts,
			&e.Product.ID, &e.Product.Name, &e.Product.Price, &e.Product.Stock,
			&e.Product.ImageURL, &e.Product.Description); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Timestamp = parseTimestamp(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateBrand creates a brand row.
func (r *SQLiteRepository) CreateBrand(ctx context.Context, b *catalog.Brand) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO brands (id, name) VALUES (?, ?)`, b.ID, b.Name)
	if err != nil {
		return fmt.Errorf("inserting brand: %w", err)
	}
	return nil
}

// CreateCategory creates a category row.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("inserting category: %w", err)
	}
	return nil
}

// GetBrand retrieves a brand by id.
func (r *SQLiteRepository) GetBrand(ctx context.Context, id string) (*catalog.Brand, error) {
	var b catalog.Brand
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM brands WHERE id = ?`, id).Scan(&b.ID, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying brand: %w", err)
	}
	return &b, nil
}

// GetCategory retrieves a category by id.
func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	var c catalog.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying category: %w", err)
	}
	return &c, nil
}

// ListBrands returns all brands sorted by name.
func (r *SQLiteRepository) ListBrands(ctx context.Context) ([]catalog.Brand, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM brands ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying brands: %w", err)
	}
	defer rows.Close()

	var brands []catalog.Brand
	for rows.Next() {
		var b catalog.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("scanning brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// ListCategories returns all categories sorted by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateProduct inserts a product and links it to its brand and category.
// Unknown link ids fail the whole creation with ErrNotFound.
func (r *SQLiteRepository) CreateProduct(ctx context.Context, p *catalog.Product, brandID, categoryID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if brandID != "" {
		if err := requireRowTx(ctx, tx, "brands", brandID); err != nil {
			return err
		}
	}
	if categoryID != "" {
		if err := requireRowTx(ctx, tx, "categories", categoryID); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, image_url, description, brand_id, category_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Price, p.Stock, p.ImageURL, p.Description,
		nullable(brandID), nullable(categoryID))
	if err != nil {
		return fmt.Errorf("inserting product: %w", err)
	}
	return tx.Commit()
}

const productDetailSelect = `
	SELECT p.id, p.name, p.price, p.stock, p.image_url, p.description,
	       b.id, b.name, c.id, c.name
	FROM products p
	LEFT JOIN brands b ON b.id = p.brand_id
	LEFT JOIN categories c ON c.id = p.category_id
`

// GetProduct retrieves a product with its brand and category, either of
// which may be absent.
func (r *SQLiteRepository) GetProduct(ctx context.Context, id string) (*catalog.ProductDetail, error) {
	row := r.db.QueryRowContext(ctx, productDetailSelect+` WHERE p.id = ?`, id)
	detail, _, err := scanDetail(row.Scan, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying product: %w", err)
	}
	return detail, nil
}

// FindProducts lists products restricted by the filter predicates, each an
// optional clause with a bound named parameter.
func (r *SQLiteRepository) FindProducts(ctx context.Context, f catalog.Filter) ([]catalog.ProductDetail, error) {
	var b whereBuilder
	if f.Query != "" {
		b.add(`(instr(lower(p.name), lower(:query)) > 0 OR instr(lower(p.description), lower(:query)) > 0)`,
			"query", f.Query)
	}
	if f.Brand != "" {
		b.add(`lower(b.name) = lower(:brand)`, "brand", f.Brand)
	}
	if f.Category != "" {
		b.add(`lower(c.name) = lower(:category)`, "category", f.Category)
	}

	query := productDetailSelect + " " + b.where() + ` ORDER BY lower(p.name) ASC`
	rows, err := r.db.QueryContext(ctx, query, namedArgs(b.params())...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []catalog.ProductDetail
	for rows.Next() {
		detail, _, err := scanDetail(rows.Scan, false)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, *detail)
	}
	return products, rows.Err()
}

// RecordView upserts a VIEWED edge, refreshing the timestamp either way.
func (r *SQLiteRepository) RecordView(ctx context.Context, userID, productID string) error {
	if userID == "" || productID == "" {
		return catalog.Validation("id", "user and product ids are required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireRowTx(ctx, tx, "users", userID); err != nil {
		return err
	}
	if err := requireRowTx(ctx, tx, "products", productID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO viewed (user_id, product_id, timestamp) VALUES (?, ?, ?)
		ON CONFLICT (user_id, product_id) DO UPDATE SET timestamp = excluded.timestamp`,
		userID, productID, now())
	if err != nil {
		return fmt.Errorf("upserting view: %w", err)
	}
	return tx.Commit()
}

// ToggleLike deletes the LIKED edge when present, creates it otherwise, and
// reports the resulting state.
func (r *SQLiteRepository) ToggleLike(ctx context.Context, userID, productID string) (bool, error) {
	if userID == "" || productID == "" {
		return false, catalog.Validation("id", "user and product ids are required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM liked WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("deleting like: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting like: %w", err)
	}
	if deleted > 0 {
		return false, tx.Commit()
	}

	if err := requireRowTx(ctx, tx, "users", userID); err != nil {
		return false, err
	}
	if err := requireRowTx(ctx, tx, "products", productID); err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO liked (user_id, product_id, timestamp) VALUES (?, ?, ?)`,
		userID, productID, now())
	if err != nil {
		return false, fmt.Errorf("inserting like: %w", err)
	}
	return true, tx.Commit()
}

// Purchase runs the conditional decrement and the BOUGHT upsert in a single
// transaction. The decrement's WHERE stock > 0 is the atomic guard; a zero
// row count means the stock was empty or the product unknown, and nothing
// is committed.
func (r *SQLiteRepository) Purchase(ctx context.Context, userID, productID string) (*catalog.PurchaseResult, error) {
	if userID == "" || productID == "" {
		return nil, catalog.Validation("id", "user and product ids are required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - 1 WHERE id = ? AND stock > 0`, productID)
	if err != nil {
		return nil, fmt.Errorf("decrementing stock: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("decrementing stock: %w", err)
	}
	if rows == 0 {
		if err := requireRowTx(ctx, tx, "products", productID); err != nil {
			return nil, err
		}
		if err := requireRowTx(ctx, tx, "users", userID); err != nil {
			return nil, err
		}
		return nil, catalog.ErrOutOfStock
	}

	if err := requireRowTx(ctx, tx, "users", userID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bought (user_id, product_id, quantity, timestamp) VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			quantity = quantity + 1,
			timestamp = excluded.timestamp`,
		userID, productID, now())
	if err != nil {
		return nil, fmt.Errorf("upserting purchase: %w", err)
	}

	var result catalog.PurchaseResult
	err = tx.QueryRowContext(ctx, `
		SELECT p.stock, b.quantity
		FROM products p
		JOIN bought b ON b.product_id = p.id AND b.user_id = ?
		WHERE p.id = ?`,
		userID, productID).Scan(&result.NewStock, &result.Quantity)
	if err != nil {
		return nil, fmt.Errorf("reading purchase result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing purchase: %w", err)
	}
	return &result, nil
}

// PopularProducts computes the popularity branch: for every product,
// views + 2*likes + 3*bought quantity, brand and category attached.
func (r *SQLiteRepository) PopularProducts(ctx context.Context) ([]catalog.ScoredProduct, error) {
	query := `
		SELECT p.id, p.name, p.price, p.stock, p.image_url, p.description,
		       b.id, b.name, c.id, c.name,
		       (SELECT COUNT(*) FROM viewed v WHERE v.product_id = p.id)
		       + 2 * (SELECT COUNT(*) FROM liked l WHERE l.product_id = p.id)
		       + 3 * COALESCE((SELECT SUM(bt.quantity) FROM bought bt WHERE bt.product_id = p.id), 0)
		       AS score
		FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY score DESC
	`
	return r.queryScored(ctx, query)
}

// RecommendationsFor computes the personalized branch: neighbors are users
// sharing seed products with the requester, weighted by overlap size; each
// non-seed product a neighbor touched accumulates that neighbor's weight.
func (r *SQLiteRepository) RecommendationsFor(ctx context.Context, userID string) ([]catalog.ScoredProduct, error) {
	if userID == "" {
		return nil, nil
	}
	query := `
		WITH interactions AS (
			SELECT DISTINCT user_id, product_id FROM (
				SELECT user_id, product_id FROM viewed
				UNION SELECT user_id, product_id FROM liked
				UNION SELECT user_id, product_id FROM bought
			)
		),
		seeds AS (
			SELECT product_id FROM interactions WHERE user_id = :uid
		),
		neighbors AS (
			SELECT i.user_id, COUNT(DISTINCT i.product_id) AS overlap
			FROM interactions i
			JOIN seeds s ON s.product_id = i.product_id
			WHERE i.user_id <> :uid
			GROUP BY i.user_id
		),
		candidates AS (
			SELECT i.product_id, SUM(n.overlap) AS score
			FROM interactions i
			JOIN neighbors n ON n.user_id = i.user_id
			WHERE i.product_id NOT IN (SELECT product_id FROM seeds)
			GROUP BY i.product_id
		)
		SELECT p.id, p.name, p.price, p.stock, p.image_url, p.description,
		       b.id, b.name, c.id, c.name, cd.score
		FROM candidates cd
		JOIN products p ON p.id = cd.product_id
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY cd.score DESC
	`
	return r.queryScored(ctx, query, sql.Named("uid", userID))
}

func (r *SQLiteRepository) queryScored(ctx context.Context, query string, args ...any) ([]catalog.ScoredProduct, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scored products: %w", err)
	}
	defer rows.Close()

	var products []catalog.ScoredProduct
	for rows.Next() {
		detail, score, err := scanDetail(rows.Scan, true)
		if err != nil {
			return nil, fmt.Errorf("scanning scored product: %w", err)
		}
		products = append(products, catalog.ScoredProduct{ProductDetail: *detail, Score: score})
	}
	return products, rows.Err()
}

// --- row scanning helpers ---

func scanDetail(scan func(...any) error, withScore bool) (*catalog.ProductDetail, float64, error) {
	var d catalog.ProductDetail
	var brandID, brandName, catID, catName sql.NullString
	var score float64

	dest := []any{
		&d.ID, &d.Name, &d.Price, &d.Stock, &d.ImageURL, &d.Description,
		&brandID, &brandName, &catID, &catName,
	}
	if withScore {
		dest = append(dest, &score)
	}
	if err := scan(dest...); err != nil {
		return nil, 0, err
	}
	if brandID.Valid {
		d.Brand = &catalog.Brand{ID: brandID.String, Name: brandName.String}
	}
	if catID.Valid {
		d.Category = &catalog.Category{ID: catID.String, Name: catName.String}
	}
	return &d, score, nil
}

func (r *SQLiteRepository) requireRow(ctx context.Context, table, id string) error {
	return requireRowQ(ctx, r.db.QueryRowContext, table, id)
}

func requireRowTx(ctx context.Context, tx *sql.Tx, table, id string) error {
	return requireRowQ(ctx, tx.QueryRowContext, table, id)
}

// requireRowQ checks node existence. Table names come from a fixed internal
// set, never from input.
func requireRowQ(ctx context.Context, queryRow func(context.Context, string, ...any) *sql.Row, table, id string) error {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table)
	if err := queryRow(ctx, query, id).Scan(&n); err != nil {
		return fmt.Errorf("checking %s row: %w", strings.TrimSuffix(table, "s"), err)
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func namedArgs(params map[string]any) []any {
	args := make([]any, 0, len(params))
	for name, value := range params {
		args = append(args, sql.Named(name, value))
	}
	return args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
