package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/systemshift/shopgraph/internal/catalog"
)

// Neo4jRepository implements Repository against a Neo4j server. Every
// operation opens its own session and releases it on all exit paths; the
// managed transaction functions own commit and rollback.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

// Config holds Neo4j connection configuration
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// New creates a new Neo4j repository
func New(ctx context.Context, cfg Config) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Neo4jRepository{driver: driver, database: db}, nil
}

// Close closes the Neo4j connection
func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// EnsureIndexes creates the uniqueness constraints the data model relies on.
func (r *Neo4jRepository) EnsureIndexes(ctx context.Context) error {
	constraints := []string{
		`CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT user_email IF NOT EXISTS FOR (u:User) REQUIRE u.email IS UNIQUE`,
		`CREATE CONSTRAINT product_id IF NOT EXISTS FOR (p:Product) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT brand_id IF NOT EXISTS FOR (b:Brand) REQUIRE b.id IS UNIQUE`,
		`CREATE CONSTRAINT category_id IF NOT EXISTS FOR (c:Category) REQUIRE c.id IS UNIQUE`,
	}
	for _, stmt := range constraints {
		if _, err := neo4j.ExecuteQuery(ctx, r.driver, stmt, nil,
			neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(r.database)); err != nil {
			return fmt.Errorf("creating constraint: %w", err)
		}
	}
	return nil
}

func (r *Neo4jRepository) session(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
}

// CreateUser creates a User node, rejecting duplicate emails.
func (r *Neo4jRepository) CreateUser(ctx context.Context, u *catalog.User) error {
	session := r.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		check, err := tx.Run(ctx, `MATCH (u:User {email: $email}) RETURN u.id`, map[string]any{"email": u.Email})
		if err != nil {
			return nil, err
		}
		if check.Next(ctx) {
			return nil, catalog.ErrEmailTaken
		}

		query := `
			CREATE (u:User {
				id: $id,
				name: $name,
				email: $email,
				age: $age,
				password: $password
			})
		`
		params := map[string]any{
			"id":       u.ID,
			"name":     u.Name,
			"email":    u.Email,
			"age":      u.Age,
			"password": u.PasswordHash,
		}
		_, err = tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// GetUser retrieves a user by id, without its password hash.
func (r *Neo4jRepository) GetUser(ctx context.Context, id string) (*catalog.User, error) {
	u, err := r.findUser(ctx, `MATCH (u:User {id: $value}) RETURN u`, id)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// GetUserByEmail retrieves a user by email including its password hash.
func (r *Neo4jRepository) GetUserByEmail(ctx context.Context, email string) (*catalog.User, error) {
	return r.findUser(ctx, `MATCH (u:User {email: $value}) RETURN u`, email)
}

func (r *Neo4jRepository) findUser(ctx context.Context, query, value string) (*catalog.User, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"value": value})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		node, ok := nodeValue(result.Record(), "u")
		if !ok {
			return nil, fmt.Errorf("unexpected record shape for user")
		}
		return userFromProps(node.Props), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*catalog.User), nil
}

// UpdateUser applies a partial update to a user node; unset fields keep the
// stored value via coalesce. An email change colliding with another user
// fails with ErrEmailTaken, same as registration.
func (r *Neo4jRepository) UpdateUser(ctx context.Context, id string, upd catalog.UserUpdate) (*catalog.User, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if upd.Email != nil {
			check, err := tx.Run(ctx,
				`MATCH (o:User {email: $email}) WHERE o.id <> $id RETURN o.id`,
				map[string]any{"email": *upd.Email, "id": id})
			if err != nil {
				return nil, err
			}
			if check.Next(ctx) {
				return nil, catalog.ErrEmailTaken
			}
		}

		query := `
			MATCH (u:User {id: $id})
			SET u.name = coalesce($name, u.name),
				u.email = coalesce($email, u.email),
				u.age = coalesce($age, u.age),
				u.password = coalesce($password, u.password)
			RETURN u
		`
		params := map[string]any{
			"id":       id,
			"name":     optString(upd.Name),
			"email":    optString(upd.Email),
			"age":      optInt(upd.Age),
			"password": optString(upd.PasswordHash),
		}
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		node, ok := nodeValue(result.Record(), "u")
		if !ok {
			return nil, fmt.Errorf("unexpected record shape for user")
		}
		return userFromProps(node.Props), nil
	})
	if err != nil {
		return nil, err
	}
	u := result.(*catalog.User)
	u.PasswordHash = ""
	return u, nil
}

// GetUserHistory returns the raw interaction edge list for a user.
func (r *Neo4jRepository) GetUserHistory(ctx context.Context, userID string) ([]catalog.HistoryEntry, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		check, err := tx.Run(ctx, `MATCH (u:User {id: $userId}) RETURN u.id`, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}
		if !check.Next(ctx) {
			return nil, catalog.ErrNotFound
		}

		query := `
			MATCH (u:User {id: $userId})-[r:VIEWED|LIKED|BOUGHT]->(p:Product)
			RETURN type(r) AS action, r.timestamp AS ts, p
		`
		result, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}

		var entries []catalog.HistoryEntry
		for result.Next(ctx) {
			record := result.Record()
			action, _ := record.Get("action")
			ts, _ := record.Get("ts")
			node, ok := nodeValue(record, "p")
			if !ok {
				continue
			}
			entries = append(entries, catalog.HistoryEntry{
				Action:    action.(string),
				Timestamp: parseTimestamp(ts),
				Product:   productFromProps(node.Props),
			})
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]catalog.HistoryEntry), nil
}

// CreateBrand creates a Brand node.
func (r *Neo4jRepository) CreateBrand(ctx context.Context, b *catalog.Brand) error {
	return r.createNamed(ctx, `CREATE (b:Brand {id: $id, name: $name})`, b.ID, b.Name)
}

// CreateCategory creates a Category node.
func (r *Neo4jRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	return r.createNamed(ctx, `CREATE (c:Category {id: $id, name: $name})`, c.ID, c.Name)
}

func (r *Neo4jRepository) createNamed(ctx context.Context, query, id, name string) error {
	session := r.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"id": id, "name": name})
		return nil, err
	})
	return err
}

// GetBrand retrieves a brand by id.
func (r *Neo4jRepository) GetBrand(ctx context.Context, id string) (*catalog.Brand, error) {
	id2, name, err := r.findNamed(ctx, `MATCH (n:Brand {id: $id}) RETURN n`, id)
	if err != nil {
		return nil, err
	}
	return &catalog.Brand{ID: id2, Name: name}, nil
}

// GetCategory retrieves a category by id.
func (r *Neo4jRepository) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	id2, name, err := r.findNamed(ctx, `MATCH (n:Category {id: $id}) RETURN n`, id)
	if err != nil {
		return nil, err
	}
	return &catalog.Category{ID: id2, Name: name}, nil
}

func (r *Neo4jRepository) findNamed(ctx context.Context, query, id string) (string, string, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		node, ok := nodeValue(result.Record(), "n")
		if !ok {
			return nil, fmt.Errorf("unexpected record shape")
		}
		return [2]string{stringProp(node.Props, "id"), stringProp(node.Props, "name")}, nil
	})
	if err != nil {
		return "", "", err
	}
	pair := result.([2]string)
	return pair[0], pair[1], nil
}

// ListBrands returns all brands sorted by name.
func (r *Neo4jRepository) ListBrands(ctx context.Context) ([]catalog.Brand, error) {
	pairs, err := r.listNamed(ctx, `MATCH (n:Brand) RETURN n ORDER BY n.name ASC`)
	if err != nil {
		return nil, err
	}
	brands := make([]catalog.Brand, len(pairs))
	for i, p := range pairs {
		brands[i] = catalog.Brand{ID: p[0], Name: p[1]}
	}
	return brands, nil
}

// ListCategories returns all categories sorted by name.
func (r *Neo4jRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	pairs, err := r.listNamed(ctx, `MATCH (n:Category) RETURN n ORDER BY n.name ASC`)
	if err != nil {
		return nil, err
	}
	categories := make([]catalog.Category, len(pairs))
	for i, p := range pairs {
		categories[i] = catalog.Category{ID: p[0], Name: p[1]}
	}
	return categories, nil
}

func (r *Neo4jRepository) listNamed(ctx context.Context, query string) ([][2]string, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		var pairs [][2]string
		for result.Next(ctx) {
			node, ok := nodeValue(result.Record(), "n")
			if !ok {
				continue
			}
			pairs = append(pairs, [2]string{stringProp(node.Props, "id"), stringProp(node.Props, "name")})
		}
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][2]string), nil
}

// CreateProduct creates a Product node and its OFFERED_BY / BELONGS_TO edges
// in one write transaction. Unknown brand or category ids fail the whole
// creation with ErrNotFound.
func (r *Neo4jRepository) CreateProduct(ctx context.Context, p *catalog.Product, brandID, categoryID string) error {
	session := r.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for label, linkID := range map[string]string{"Brand": brandID, "Category": categoryID} {
			if linkID == "" {
				continue
			}
			check, err := tx.Run(ctx,
				fmt.Sprintf(`MATCH (n:%s {id: $id}) RETURN n.id`, label),
				map[string]any{"id": linkID})
			if err != nil {
				return nil, err
			}
			if !check.Next(ctx) {
				return nil, catalog.ErrNotFound
			}
		}

		query := `
			CREATE (p:Product {
				id: $id,
				name: $name,
				price: $price,
				stock: $stock,
				imageUrl: $imageUrl,
				description: $description
			})
		`
		params := map[string]any{
			"id":          p.ID,
			"name":        p.Name,
			"price":       p.Price,
			"stock":       p.Stock,
			"imageUrl":    p.ImageURL,
			"description": p.Description,
		}
		if _, err := tx.Run(ctx, query, params); err != nil {
			return nil, err
		}

		if brandID != "" {
			_, err := tx.Run(ctx, `
				MATCH (p:Product {id: $id}), (b:Brand {id: $brandId})
				CREATE (p)-[:OFFERED_BY]->(b)
			`, map[string]any{"id": p.ID, "brandId": brandID})
			if err != nil {
				return nil, err
			}
		}
		if categoryID != "" {
			_, err := tx.Run(ctx, `
				MATCH (p:Product {id: $id}), (c:Category {id: $categoryId})
				CREATE (p)-[:BELONGS_TO]->(c)
			`, map[string]any{"id": p.ID, "categoryId": categoryID})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// GetProduct retrieves a product with its brand and category, either of
// which may be absent.
func (r *Neo4jRepository) GetProduct(ctx context.Context, id string) (*catalog.ProductDetail, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (p:Product {id: $id})
			OPTIONAL MATCH (p)-[:OFFERED_BY]->(b:Brand)
			OPTIONAL MATCH (p)-[:BELONGS_TO]->(c:Category)
			RETURN p, b, c
		`
		result, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		detail := detailFromRecord(result.Record())
		return &detail, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*catalog.ProductDetail), nil
}

// FindProducts lists products restricted by the filter predicates. Each
// predicate is an optional clause with a bound parameter; user input never
// reaches the query text.
func (r *Neo4jRepository) FindProducts(ctx context.Context, f catalog.Filter) ([]catalog.ProductDetail, error) {
	var b whereBuilder
	if f.Query != "" {
		b.add(`(toLower(p.name) CONTAINS toLower($query) OR toLower(coalesce(p.description, '')) CONTAINS toLower($query))`,
			"query", f.Query)
	}
	if f.Brand != "" {
		b.add(`toLower(b.name) = toLower($brand)`, "brand", f.Brand)
	}
	if f.Category != "" {
		b.add(`toLower(c.name) = toLower($category)`, "category", f.Category)
	}

	query := fmt.Sprintf(`
		MATCH (p:Product)
		OPTIONAL MATCH (p)-[:OFFERED_BY]->(b:Brand)
		OPTIONAL MATCH (p)-[:BELONGS_TO]->(c:Category)
		WITH p, b, c
		%s
		RETURN p, b, c
		ORDER BY toLower(p.name) ASC
	`, b.where())

	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, b.params())
		if err != nil {
			return nil, err
		}
		var products []catalog.ProductDetail
		for result.Next(ctx) {
			products = append(products, detailFromRecord(result.Record()))
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]catalog.ProductDetail), nil
}

// RecordView upserts a VIEWED edge, refreshing the timestamp whether the
// edge is created or already present.
func (r *Neo4jRepository) RecordView(ctx context.Context, userID, productID string) error {
	if userID == "" || productID == "" {
		return catalog.Validation("id", "user and product ids are required")
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $userId}), (p:Product {id: $productId})
			MERGE (u)-[v:VIEWED]->(p)
			SET v.timestamp = $ts
			RETURN p.id
		`
		result, err := tx.Run(ctx, query, map[string]any{
			"userId":    userID,
			"productId": productID,
			"ts":        now(),
		})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		return nil, nil
	})
	return err
}

// ToggleLike deletes the LIKED edge when present, creates it otherwise, and
// reports the resulting state. Both halves run in one write transaction.
func (r *Neo4jRepository) ToggleLike(ctx context.Context, userID, productID string) (bool, error) {
	if userID == "" || productID == "" {
		return false, catalog.Validation("id", "user and product ids are required")
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		del, err := tx.Run(ctx, `
			MATCH (u:User {id: $userId})-[l:LIKED]->(p:Product {id: $productId})
			DELETE l
			RETURN p.id
		`, map[string]any{"userId": userID, "productId": productID})
		if err != nil {
			return nil, err
		}
		if del.Next(ctx) {
			return false, nil
		}

		create, err := tx.Run(ctx, `
			MATCH (u:User {id: $userId}), (p:Product {id: $productId})
			MERGE (u)-[l:LIKED]->(p)
			SET l.timestamp = $ts
			RETURN p.id
		`, map[string]any{"userId": userID, "productId": productID, "ts": now()})
		if err != nil {
			return nil, err
		}
		if !create.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Purchase decrements stock and upserts the BOUGHT edge in one guarded
// write. The decrement runs first: SET takes the node's write lock and
// re-reads the property under it, so concurrent purchases serialize on the
// decrement itself. A purchase that drives stock negative fails the guard,
// returns an error and the managed transaction rolls the decrement back. A
// WHERE before the SET would not do: it reads without a lock, and two
// transactions can both pass it against the last unit.
func (r *Neo4jRepository) Purchase(ctx context.Context, userID, productID string) (*catalog.PurchaseResult, error) {
	if userID == "" || productID == "" {
		return nil, catalog.Validation("id", "user and product ids are required")
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $userId}), (p:Product {id: $productId})
			SET p.stock = p.stock - 1
			WITH u, p
			WHERE p.stock >= 0
			MERGE (u)-[b:BOUGHT]->(p)
			ON CREATE SET b.quantity = 1, b.timestamp = $ts
			ON MATCH SET b.quantity = b.quantity + 1, b.timestamp = $ts
			RETURN p.stock AS stock, b.quantity AS quantity
		`
		result, err := tx.Run(ctx, query, map[string]any{
			"userId":    userID,
			"productId": productID,
			"ts":        now(),
		})
		if err != nil {
			return nil, err
		}
		if result.Next(ctx) {
			record := result.Record()
			stock, _ := record.Get("stock")
			quantity, _ := record.Get("quantity")
			return &catalog.PurchaseResult{NewStock: asInt(stock), Quantity: asInt(quantity)}, nil
		}

		// Zero rows: either a node is missing or the decrement went below
		// zero. The error return rolls the whole transaction back, so a
		// failed attempt never changes stock.
		check, err := tx.Run(ctx, `
			MATCH (u:User {id: $userId})
			MATCH (p:Product {id: $productId})
			RETURN p.stock AS stock
		`, map[string]any{"userId": userID, "productId": productID})
		if err != nil {
			return nil, err
		}
		if !check.Next(ctx) {
			return nil, catalog.ErrNotFound
		}
		return nil, catalog.ErrOutOfStock
	})
	if err != nil {
		return nil, err
	}
	return result.(*catalog.PurchaseResult), nil
}

// PopularProducts computes the popularity branch: for every product,
// views + 2*likes + 3*bought quantity, brand and category attached.
func (r *Neo4jRepository) PopularProducts(ctx context.Context) ([]catalog.ScoredProduct, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (p:Product)
			OPTIONAL MATCH (p)-[:OFFERED_BY]->(b:Brand)
			OPTIONAL MATCH (p)-[:BELONGS_TO]->(c:Category)
			WITH p, b, c,
				size([(:User)-[:VIEWED]->(p) | 1]) AS views,
				size([(:User)-[:LIKED]->(p) | 1]) AS likes,
				reduce(total = 0, q IN [(:User)-[bt:BOUGHT]->(p) | bt.quantity] | total + q) AS bought
			RETURN p, b, c, views + 2*likes + 3*bought AS score
			ORDER BY score DESC
		`
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return scoredFromResult(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return result.([]catalog.ScoredProduct), nil
}

// RecommendationsFor computes the personalized branch: neighbors are users
// sharing seed products with the requester, weighted by overlap size; each
// non-seed product a neighbor touched accumulates that neighbor's weight.
func (r *Neo4jRepository) RecommendationsFor(ctx context.Context, userID string) ([]catalog.ScoredProduct, error) {
	if userID == "" {
		return nil, nil
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (me:User {id: $userId})-[:VIEWED|LIKED|BOUGHT]->(seed:Product)
			WITH me, collect(DISTINCT seed) AS seeds
			UNWIND seeds AS s
			MATCH (other:User)-[:VIEWED|LIKED|BOUGHT]->(s)
			WHERE other.id <> me.id
			WITH seeds, other, count(DISTINCT s) AS overlap
			MATCH (other)-[:VIEWED|LIKED|BOUGHT]->(cand:Product)
			WHERE NOT cand IN seeds
			WITH DISTINCT cand, other, overlap
			WITH cand, sum(overlap) AS score
			OPTIONAL MATCH (cand)-[:OFFERED_BY]->(b:Brand)
			OPTIONAL MATCH (cand)-[:BELONGS_TO]->(c:Category)
			RETURN cand AS p, b, c, score
			ORDER BY score DESC
		`
		result, err := tx.Run(ctx, query, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}
		return scoredFromResult(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	return result.([]catalog.ScoredProduct), nil
}

func scoredFromResult(ctx context.Context, result neo4j.ResultWithContext) ([]catalog.ScoredProduct, error) {
	var products []catalog.ScoredProduct
	for result.Next(ctx) {
		record := result.Record()
		score, _ := record.Get("score")
		products = append(products, catalog.ScoredProduct{
			ProductDetail: detailFromRecord(record),
			Score:         asFloat(score),
		})
	}
	return products, result.Err()
}

// --- record extraction helpers ---

func nodeValue(record *neo4j.Record, key string) (neo4j.Node, bool) {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return neo4j.Node{}, false
	}
	node, ok := v.(neo4j.Node)
	return node, ok
}

func detailFromRecord(record *neo4j.Record) catalog.ProductDetail {
	detail := catalog.ProductDetail{}
	if p, ok := nodeValue(record, "p"); ok {
		detail.Product = productFromProps(p.Props)
	}
	if b, ok := nodeValue(record, "b"); ok {
		detail.Brand = &catalog.Brand{ID: stringProp(b.Props, "id"), Name: stringProp(b.Props, "name")}
	}
	if c, ok := nodeValue(record, "c"); ok {
		detail.Category = &catalog.Category{ID: stringProp(c.Props, "id"), Name: stringProp(c.Props, "name")}
	}
	return detail
}

func userFromProps(props map[string]any) *catalog.User {
	return &catalog.User{
		ID:           stringProp(props, "id"),
		Name:         stringProp(props, "name"),
		Email:        stringProp(props, "email"),
		Age:          intProp(props, "age"),
		PasswordHash: stringProp(props, "password"),
	}
}

func productFromProps(props map[string]any) catalog.Product {
	return catalog.Product{
		ID:          stringProp(props, "id"),
		Name:        stringProp(props, "name"),
		Price:       floatProp(props, "price"),
		Stock:       intProp(props, "stock"),
		ImageURL:    stringProp(props, "imageUrl"),
		Description: stringProp(props, "description"),
	}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProp(props map[string]any, key string) int64 {
	return asInt(props[key])
}

func floatProp(props map[string]any, key string) float64 {
	return asFloat(props[key])
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

// Edge timestamps are stored as RFC3339Nano strings; nothing in the queries
// needs the store's temporal type, and string round-tripping keeps the two
// backends identical.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
