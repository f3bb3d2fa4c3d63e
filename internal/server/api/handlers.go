package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/systemshift/shopgraph/internal/catalog"
	"github.com/systemshift/shopgraph/internal/server/graph"
	"github.com/systemshift/shopgraph/internal/server/recommend"
)

const bcryptCost = 10

// Server holds the HTTP server dependencies
type Server struct {
	repo   graph.Repository
	engine *recommend.Engine
	log    *logrus.Logger
}

// New creates a new API server
func New(repo graph.Repository, engine *recommend.Engine, log *logrus.Logger) *Server {
	return &Server{repo: repo, engine: engine, log: log}
}

// Routes mounts all handlers on a fresh router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/ping", s.Ping)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Get("/{id}", s.GetUser)
			r.Put("/{id}", s.UpdateUser)
			r.Get("/{id}/history", s.GetUserHistory)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.OptionalAuth)
			r.Get("/", s.ListProducts)
			r.Get("/recommendations", s.Recommendations)
			r.Get("/{id}", s.GetProduct)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Post("/", s.CreateProduct)
			r.Post("/{id}/like", s.ToggleLike)
			r.Post("/{id}/buy", s.Buy)
		})
	})

	r.Route("/brands", func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Get("/", s.ListBrands)
		r.Get("/{id}", s.GetBrand)
		r.Post("/", s.CreateBrand)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Use(s.RequireAuth)
		r.Get("/", s.ListCategories)
		r.Get("/{id}", s.GetCategory)
		r.Post("/", s.CreateCategory)
	})

	return r
}

// Ping handles GET /ping
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"success": true, "message": "pong"})
}

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Age      int64  `json:"age"`
	Password string `json:"password"`
}

// Register handles POST /users/register
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case req.Name == "":
		s.fail(w, http.StatusBadRequest, "name is required")
		return
	case req.Email == "":
		s.fail(w, http.StatusBadRequest, "email is required")
		return
	case req.Password == "":
		s.fail(w, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		s.writeError(w, err)
		return
	}

	user := &catalog.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Age:          req.Age,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateUser(r.Context(), user); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}

// LoginRequest is the request body for credential verification.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /users/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.repo.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, catalog.ErrNotFound) {
		s.writeError(w, catalog.ErrInvalidCredentials)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.writeError(w, catalog.ErrInvalidCredentials)
		return
	}
	user.PasswordHash = ""
	s.respond(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"user":    user,
	})
}

// GetUser handles GET /users/{id}
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.repo.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

// UpdateUserRequest is the request body for a partial user update.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Age      *int64  `json:"age"`
	Password *string `json:"password"`
}

// UpdateUser handles PUT /users/{id}. Callers may only update themselves.
func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity, _ := identityFrom(r.Context())
	if identity.ID != id {
		s.writeError(w, catalog.ErrForbidden)
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := catalog.UserUpdate{Name: req.Name, Email: req.Email, Age: req.Age}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcryptCost)
		if err != nil {
			s.writeError(w, err)
			return
		}
		hashed := string(hash)
		upd.PasswordHash = &hashed
	}

	user, err := s.repo.UpdateUser(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

// GetUserHistory handles GET /users/{id}/history. A caller may only read
// their own history. Entries are deduplicated per product by latest
// timestamp and sorted descending.
func (s *Server) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity, _ := identityFrom(r.Context())
	if identity.ID != id {
		s.writeError(w, catalog.ErrForbidden)
		return
	}

	entries, err := s.repo.GetUserHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	history := catalog.DedupeHistory(entries)
	if history == nil {
		history = []catalog.HistoryEntry{}
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "history": history})
}

// ListProducts handles GET /products: the plain filtered catalog listing.
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.repo.FindProducts(r.Context(), filterFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if products == nil {
		products = []catalog.ProductDetail{}
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

// Recommendations handles GET /products/recommendations: the ranked,
// filtered listing. Anonymous callers get the popularity fallback.
func (s *Server) Recommendations(w http.ResponseWriter, r *http.Request) {
	var userID string
	if identity, ok := identityFrom(r.Context()); ok {
		userID = identity.ID
	}

	opts := recommend.Options{
		Filter: filterFromQuery(r),
		Limit:  recommend.ParseLimit(r.URL.Query().Get("limit")),
	}
	products, err := s.engine.List(r.Context(), userID, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if products == nil {
		products = []catalog.ScoredProduct{}
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "products": products})
}

// GetProduct handles GET /products/{id}. When the caller is authenticated
// the read also records a VIEWED edge; a failure there is logged and
// swallowed, never failing the read itself.
func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	product, err := s.repo.GetProduct(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if identity, ok := identityFrom(r.Context()); ok {
		if err := s.repo.RecordView(r.Context(), identity.ID, id); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"user":    identity.ID,
				"product": id,
			}).Warn("recording view failed")
		}
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "product": product})
}

// CreateProductRequest is the request body for product creation.
type CreateProductRequest struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
	ImageURL    string  `json:"imageUrl"`
	Description string  `json:"description"`
	BrandID     string  `json:"brandId"`
	CategoryID  string  `json:"categoryId"`
}

// CreateProduct handles POST /products. Brand and category links are set
// here, once, and never change afterwards.
func (s *Server) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case req.Name == "":
		s.fail(w, http.StatusBadRequest, "name is required")
		return
	case req.Price < 0:
		s.fail(w, http.StatusBadRequest, "price must not be negative")
		return
	case req.Stock < 0:
		s.fail(w, http.StatusBadRequest, "stock must not be negative")
		return
	}

	product := &catalog.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		Description: req.Description,
	}
	if err := s.repo.CreateProduct(r.Context(), product, req.BrandID, req.CategoryID); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"success": true, "product": product})
}

// ToggleLike handles POST /products/{id}/like
func (s *Server) ToggleLike(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	liked, err := s.repo.ToggleLike(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "liked": liked})
}

// Buy handles POST /products/{id}/buy
func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	result, err := s.repo.Purchase(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"success":  true,
		"newStock": result.NewStock,
		"quantity": result.Quantity,
	})
}

// ListBrands handles GET /brands
func (s *Server) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := s.repo.ListBrands(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if brands == nil {
		brands = []catalog.Brand{}
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "brands": brands})
}

// GetBrand handles GET /brands/{id}
func (s *Server) GetBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := s.repo.GetBrand(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "brand": brand})
}

// CreateBrand handles POST /brands
func (s *Server) CreateBrand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.fail(w, http.StatusBadRequest, "Name is required")
		return
	}
	brand := &catalog.Brand{ID: uuid.NewString(), Name: req.Name}
	if err := s.repo.CreateBrand(r.Context(), brand); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Brand created successfully",
		"brand":   brand,
	})
}

// ListCategories handles GET /categories
func (s *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.repo.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "categories": categories})
}

// GetCategory handles GET /categories/{id}
func (s *Server) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.repo.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "category": category})
}

// CreateCategory handles POST /categories
func (s *Server) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.fail(w, http.StatusBadRequest, "Name is required")
		return
	}
	category := &catalog.Category{ID: uuid.NewString(), Name: req.Name}
	if err := s.repo.CreateCategory(r.Context(), category); err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{
		"success":  true,
		"message":  "Category created successfully",
		"category": category,
	})
}

// --- response helpers ---

func filterFromQuery(r *http.Request) catalog.Filter {
	q := r.URL.Query()
	return catalog.Filter{
		Query:    q.Get("query"),
		Brand:    q.Get("brand"),
		Category: q.Get("category"),
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]any{"success": false, "message": message})
}

// writeError maps an engine error to its HTTP status. Anything outside the
// taxonomy is an internal store failure: logged in full, returned generic.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case catalog.IsValidation(err):
		s.fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrEmailTaken):
		s.fail(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, catalog.ErrInvalidCredentials):
		s.fail(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, catalog.ErrForbidden):
		s.fail(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, catalog.ErrNotFound):
		s.fail(w, http.StatusNotFound, "Not found")
	case errors.Is(err, catalog.ErrOutOfStock):
		s.fail(w, http.StatusConflict, "Out of stock")
	default:
		s.log.WithError(err).Error("internal error")
		s.fail(w, http.StatusInternalServerError, "Internal server error")
	}
}
