package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shafran/commerce/internal/catalog/domain"
	"github.com/shafran/commerce/internal/clock"
	pkgdb "github.com/shafran/commerce/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	description := strings.TrimSpace(ptrToString(req.Description))
	var descriptionPtr *string
	if description != "" {
		descriptionPtr = &description
	}

	id := s.genID.Generate()
	now := s.clock.Now()
	p := &domain.Product{
		ID:                id,
		Code:              fmt.Sprintf("%s-%s", slug.Make(name), id.Base36()),
		Name:              name,
		Description:       descriptionPtr,
		Active:            true,
		AssemblyAvailable: req.AssemblyAvailable,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Metadata != nil {
		p.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.CreateProduct(ctx, s.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) CreateVariant(ctx context.Context, req domain.CreateVariantRequest) (*domain.Variant, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return nil, domain.ErrInvalidSKU
	}
	if req.Price <= 0 {
		return nil, domain.ErrInvalidPrice
	}
	if req.Stock < 0 {
		return nil, domain.ErrInvalidStock
	}

	product, err := s.repo.FindProductByID(ctx, s.db, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	now := s.clock.Now()
	v := &domain.Variant{
		ID:        s.genID.Generate(),
		ProductID: product.ID,
		SKU:       sku,
		Price:     req.Price,
		Stock:     req.Stock,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateVariant(ctx, s.db, v); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSKU
		}
		return nil, err
	}
	return v, nil
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	item, err := s.repo.FindProductByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrProductNotFound
	}
	return item, nil
}

func (s *Service) GetVariant(ctx context.Context, id snowflake.ID) (*domain.Variant, error) {
	item, err := s.repo.FindVariantByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrVariantNotFound
	}
	return item, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.db)
}

func (s *Service) ListVariants(ctx context.Context, productID snowflake.ID) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx, s.db, productID)
}

func (s *Service) ReserveStock(ctx context.Context, tx *gorm.DB, lines []domain.ReservationLine) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}

		product, err := s.repo.FindProductByID(ctx, tx, line.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return domain.ErrProductNotFound
		}
		if !product.Active {
			return domain.ErrProductInactive
		}

		variant, err := s.repo.FindVariantByID(ctx, tx, line.VariantID)
		if err != nil {
			return err
		}
		if variant == nil || variant.ProductID != line.ProductID {
			return domain.ErrVariantNotFound
		}
		if !variant.Active {
			return domain.ErrVariantInactive
		}

		ok, err := s.repo.DecrementStock(ctx, tx, line.VariantID, line.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInsufficientStock
		}
	}
	return nil
}

func (s *Service) ReleaseStock(ctx context.Context, tx *gorm.DB, lines []domain.ReservationLine) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		ok, err := s.repo.IncrementStock(ctx, tx, line.VariantID, line.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("release skipped missing variant",
				zap.Int64("variant_id", line.VariantID.Int64()),
				zap.Int64("quantity", line.Quantity),
			)
		}
	}
	return nil
}

func ptrToString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
