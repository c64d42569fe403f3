package products

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

// RepositoryPort defines data access methods for products.
type RepositoryPort interface {
	ListProducts(ctx context.Context) ([]Product, error)
	SearchProducts(ctx context.Context, term string) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CodeExists(ctx context.Context, code string, excludeID int64) (bool, error)
	CreateProduct(ctx context.Context, p NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, id int64, c Changes) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
}

// Service handles product business logic.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, validate: shared.NewValidator()}
}

// List returns all products.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Search returns products whose code, name or description contains term. The
// sanitized term is returned alongside the matches.
func (s *Service) Search(ctx context.Context, term string) (string, []Product, error) {
	clean := strings.TrimSpace(shared.PlainText(term))
	if clean == "" {
		return "", nil, shared.NewValidationError("query", "is required")
	}
	if len(clean) > 100 {
		return "", nil, shared.NewValidationError("query", "must be at most 100 characters")
	}
	products, err := s.repo.SearchProducts(ctx, clean)
	if err != nil {
		return "", nil, err
	}
	return clean, products, nil
}

// Stats returns catalogue aggregates.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}

// Create validates, sanitizes and stores a product owned by the calling identity.
func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	in.Code = shared.NormalizeIdentifier(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, shared.ValidationErrorFrom(err)
	}
	name, err := sanitizeName(in.Name)
	if err != nil {
		return Product{}, err
	}
	if err := s.checkCodeFree(ctx, in.Code, 0); err != nil {
		return Product{}, err
	}
	np := NewProduct{
		Code:        in.Code,
		Name:        name,
		Description: sanitizeDescription(in.Description),
		Quantity:    *in.Quantity,
		Price:       *in.Price,
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		id := actor.IdentityID
		np.CreatedByID = &id
	}
	product, err := s.repo.CreateProduct(ctx, np)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", slog.Int64("product_id", product.ID), slog.String("code", product.Code))
	return product, nil
}

// Update applies a partial edit. At least one field must be present.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Product, error) {
	if in.empty() {
		return Product{}, shared.NewValidationError("body", "no fields to update")
	}
	if in.Code != nil {
		code := shared.NormalizeIdentifier(*in.Code)
		in.Code = &code
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if err := s.validate.Struct(in); err != nil {
		return Product{}, shared.ValidationErrorFrom(err)
	}
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return Product{}, err
	}
	changes := Changes{Quantity: in.Quantity, Price: in.Price}
	if in.Code != nil {
		if err := s.checkCodeFree(ctx, *in.Code, id); err != nil {
			return Product{}, err
		}
		changes.Code = in.Code
	}
	if in.Name != nil {
		name, err := sanitizeName(*in.Name)
		if err != nil {
			return Product{}, err
		}
		changes.Name = &name
	}
	if in.Description != nil {
		desc := ""
		if d := sanitizeDescription(in.Description); d != nil {
			desc = *d
		}
		changes.Description = &desc
	}
	product, err := s.repo.UpdateProduct(ctx, id, changes)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product updated", slog.Int64("product_id", id))
	return product, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", slog.Int64("product_id", id))
	return nil
}

func (s *Service) checkCodeFree(ctx context.Context, code string, selfID int64) error {
	exists, err := s.repo.CodeExists(ctx, code, selfID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: product code already exists", shared.ErrConstraint)
	}
	return nil
}

func sanitizeName(name string) (string, error) {
	clean := strings.TrimSpace(shared.PlainText(name))
	if len(clean) < 2 {
		return "", shared.NewValidationError("name", "must contain at least 2 visible characters")
	}
	return clean, nil
}

// sanitizeDescription returns nil for absent or blank descriptions.
func sanitizeDescription(desc *string) *string {
	if desc == nil {
		return nil
	}
	clean := strings.TrimSpace(shared.RichText(*desc))
	if clean == "" {
		return nil
	}
	return &clean
}
