package graph

// allSchemaStatements returns the DDL for the SQLite backend. The relational
// layout mirrors the graph: node tables plus one table per interaction edge
// type, with UNIQUE(user_id, product_id) enforcing the one-edge-per-pair
// invariant. OFFERED_BY and BELONGS_TO collapse into foreign keys because
// they are set once at creation and never change.
func allSchemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id       TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			email    TEXT NOT NULL UNIQUE,
			age      INTEGER NOT NULL DEFAULT 0,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS brands (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			price       REAL NOT NULL CHECK (price >= 0),
			stock       INTEGER NOT NULL CHECK (stock >= 0),
			image_url   TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			brand_id    TEXT REFERENCES brands(id),
			category_id TEXT REFERENCES categories(id)
		)`,
		`CREATE TABLE IF NOT EXISTS viewed (
			user_id    TEXT NOT NULL REFERENCES users(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			timestamp  TEXT NOT NULL,
			PRIMARY KEY (user_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS liked (
			user_id    TEXT NOT NULL REFERENCES users(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			timestamp  TEXT NOT NULL,
			PRIMARY KEY (user_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS bought (
			user_id    TEXT NOT NULL REFERENCES users(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity   INTEGER NOT NULL DEFAULT 1,
			timestamp  TEXT NOT NULL,
			PRIMARY KEY (user_id, product_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_viewed_product ON viewed(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_liked_product ON liked(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bought_product ON bought(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	}
}
