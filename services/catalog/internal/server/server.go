package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"markethub/internal/usertoken"
	"markethub/pkg/domain"
	"markethub/services/catalog/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier *usertoken.Verifier
}

// Server exposes HTTP endpoints for the catalog service.
type Server struct {
	app      *app.App
	verifier *usertoken.Verifier
	mux      *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:      cfg.App,
		verifier: cfg.Verifier,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// public browsing
	s.mux.HandleFunc("/catalog/shops", s.handleShops)
	s.mux.HandleFunc("/catalog/shops/", s.handleShopListings)
	s.mux.HandleFunc("/catalog/categories", s.handleCategories)
	s.mux.HandleFunc("/catalog/products/", s.handleProductByID)
	s.mux.HandleFunc("/catalog/parameters", s.handleParameters)

	// shop management
	s.mux.Handle("/catalog/shop", s.authenticated(s.handleMyShop))
	s.mux.Handle("/catalog/shop/state", s.authenticated(s.handleShopState))
	s.mux.Handle("/catalog/shop/pricelist", s.authenticated(s.handlePriceList))
	s.mux.Handle("/catalog/categories/assign", s.authenticated(s.handleAssignCategory))
	s.mux.Handle("/catalog/products", s.authenticated(s.handleCreateProduct))
	s.mux.Handle("/catalog/listings", s.authenticated(s.handleUpsertListing))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.verifier.FromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserByID(userID)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// public handlers
func (s *Server) handleShops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	shops, err := s.app.Shops()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": shops, "count": len(shops)})
}

func (s *Server) handleShopListings(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/catalog/shops/")
	shopID, tail, _ := strings.Cut(rest, "/")
	if shopID == "" || tail != "listings" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	listings, err := s.app.ShopListings(shopID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": listings, "count": len(listings)})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories, err := s.app.Categories()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": categories, "count": len(categories)})
	case http.MethodPost:
		s.authenticated(s.handleCreateCategory).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/catalog/products/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.Product(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		parameters, err := s.app.Parameters()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": parameters, "count": len(parameters)})
	case http.MethodPost:
		s.authenticated(s.handleCreateParameter).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

// shop management handlers
func (s *Server) handleMyShop(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		shop, err := s.app.MyShop(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, shop)
	case http.MethodPost:
		var req createShopRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		shop, err := s.app.CreateShop(user, req.Name, req.URL)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, shop)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleShopState(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req shopStateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	shop, err := s.app.SetAccepting(user, req.Accepting)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

const maxPriceListBytes = 32 << 20

func (s *Server) handlePriceList(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		url, err := s.app.PriceListURL(r.Context(), user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	case http.MethodPost:
		if err := r.ParseMultipartForm(maxPriceListBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		key, err := s.app.AttachPriceList(r.Context(), user, header.Filename, file, header.Size, contentType)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req nameRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	category, err := s.app.CreateCategory(user, req.Name)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleAssignCategory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req assignCategoryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.AssignCategory(user, req.CategoryID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createProductRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	product, err := s.app.CreateProduct(user, req.Name, req.CategoryID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleCreateParameter(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req parameterRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProductID != "" {
		if err := s.app.SetParameterValue(user, req.ProductID, req.ParameterID, req.Value); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	parameter, err := s.app.CreateParameter(user, req.Name)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, parameter)
}

func (s *Server) handleUpsertListing(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.ListingInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	listing, err := s.app.UpsertListing(user, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type createShopRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type shopStateRequest struct {
	Accepting bool `json:"accepting"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type assignCategoryRequest struct {
	CategoryID string `json:"categoryId"`
}

type createProductRequest struct {
	Name       string `json:"name"`
	CategoryID string `json:"categoryId"`
}

type parameterRequest struct {
	Name        string `json:"name"`
	ProductID   string `json:"productId"`
	ParameterID string `json:"parameterId"`
	Value       string `json:"value"`
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConstraintViolation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrShopRoleRequired):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrShopRequired),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrNoPriceList):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrObjectStoreOff):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
