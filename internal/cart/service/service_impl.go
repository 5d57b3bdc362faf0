package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/cart/domain"
	catalogdomain "github.com/shafran/commerce/internal/catalog/domain"
	"github.com/shafran/commerce/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog catalogdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	catalog catalogdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("cart.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, identity domain.Identity) (*domain.CartView, error) {
	cart, err := s.getOrCreateCart(ctx, s.db, identity)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, cart)
}

func (s *Service) AddItem(ctx context.Context, identity domain.Identity, req domain.AddItemRequest) (*domain.CartView, error) {
	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, catalogdomain.ErrProductInactive
	}
	variant, err := s.catalog.GetVariant(ctx, req.VariantID)
	if err != nil {
		return nil, err
	}
	if variant.ProductID != product.ID {
		return nil, catalogdomain.ErrVariantNotFound
	}
	if !variant.Active {
		return nil, catalogdomain.ErrVariantInactive
	}

	var cart *domain.Cart
	err = s.db.Transaction(func(tx *gorm.DB) error {
		cart, err = s.getOrCreateCart(ctx, tx, identity)
		if err != nil {
			return err
		}

		existing, err := s.repo.FindItem(ctx, tx, cart.ID, req.ProductID, req.VariantID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if existing != nil {
			existing.Quantity += req.Quantity
			existing.AssemblySelected = existing.AssemblySelected || req.AssemblySelected
			existing.UpdatedAt = now
			return s.repo.UpdateItem(ctx, tx, existing)
		}
		return s.repo.CreateItem(ctx, tx, &domain.CartItem{
			ID:               s.genID.Generate(),
			CartID:           cart.ID,
			ProductID:        req.ProductID,
			VariantID:        req.VariantID,
			Quantity:         req.Quantity,
			AssemblySelected: req.AssemblySelected,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, cart)
}

func (s *Service) UpdateItem(ctx context.Context, identity domain.Identity, itemID snowflake.ID, req domain.UpdateItemRequest) (*domain.CartView, error) {
	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	cart, err := s.findCart(ctx, s.db, identity)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindItemByID(ctx, s.db, cart.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}

	item.Quantity = req.Quantity
	if req.AssemblySelected != nil {
		item.AssemblySelected = *req.AssemblySelected
	}
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateItem(ctx, s.db, item); err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, cart)
}

func (s *Service) RemoveItem(ctx context.Context, identity domain.Identity, itemID snowflake.ID) (*domain.CartView, error) {
	cart, err := s.findCart(ctx, s.db, identity)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindItemByID(ctx, s.db, cart.ID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	if err := s.repo.DeleteItem(ctx, s.db, item.ID); err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, cart)
}

func (s *Service) Clear(ctx context.Context, db *gorm.DB, identity domain.Identity) error {
	if db == nil {
		db = s.db
	}
	cart, err := s.findCart(ctx, db, identity)
	if err != nil {
		return err
	}
	return s.repo.DeleteItems(ctx, db, cart.ID)
}

func (s *Service) Merge(ctx context.Context, guestToken string, userID snowflake.ID) (*domain.CartView, error) {
	if guestToken == "" || userID == 0 {
		return nil, domain.ErrInvalidIdentity
	}

	var target *domain.Cart
	err := s.db.Transaction(func(tx *gorm.DB) error {
		guest, err := s.repo.FindByGuestToken(ctx, tx, guestToken)
		if err != nil {
			return err
		}

		target, err = s.getOrCreateCart(ctx, tx, domain.Identity{UserID: &userID})
		if err != nil {
			return err
		}
		if guest == nil {
			return nil
		}

		guestItems, err := s.repo.FindItems(ctx, tx, guest.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, item := range guestItems {
			existing, err := s.repo.FindItem(ctx, tx, target.ID, item.ProductID, item.VariantID)
			if err != nil {
				return err
			}
			if existing != nil {
				existing.Quantity += item.Quantity
				existing.AssemblySelected = existing.AssemblySelected || item.AssemblySelected
				existing.UpdatedAt = now
				if err := s.repo.UpdateItem(ctx, tx, existing); err != nil {
					return err
				}
				continue
			}
			if err := s.repo.CreateItem(ctx, tx, &domain.CartItem{
				ID:               s.genID.Generate(),
				CartID:           target.ID,
				ProductID:        item.ProductID,
				VariantID:        item.VariantID,
				Quantity:         item.Quantity,
				AssemblySelected: item.AssemblySelected,
				CreatedAt:        now,
				UpdatedAt:        now,
			}); err != nil {
				return err
			}
		}

		if err := s.repo.DeleteItems(ctx, tx, guest.ID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, guest.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, target)
}

func (s *Service) findCart(ctx context.Context, db *gorm.DB, identity domain.Identity) (*domain.Cart, error) {
	if !identity.Valid() {
		return nil, domain.ErrInvalidIdentity
	}
	var (
		cart *domain.Cart
		err  error
	)
	if identity.UserID != nil && *identity.UserID != 0 {
		cart, err = s.repo.FindByUserID(ctx, db, *identity.UserID)
	} else {
		cart, err = s.repo.FindByGuestToken(ctx, db, identity.GuestToken)
	}
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, domain.ErrCartNotFound
	}
	return cart, nil
}

func (s *Service) getOrCreateCart(ctx context.Context, db *gorm.DB, identity domain.Identity) (*domain.Cart, error) {
	cart, err := s.findCart(ctx, db, identity)
	if err == nil {
		return cart, nil
	}
	if err != domain.ErrCartNotFound {
		return nil, err
	}

	now := s.clock.Now()
	cart = &domain.Cart{
		ID:        s.genID.Generate(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if identity.UserID != nil && *identity.UserID != 0 {
		cart.UserID = identity.UserID
	} else {
		token := identity.GuestToken
		cart.GuestToken = &token
	}
	if err := s.repo.Create(ctx, db, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) view(ctx context.Context, db *gorm.DB, cart *domain.Cart) (*domain.CartView, error) {
	items, err := s.repo.FindItems(ctx, db, cart.ID)
	if err != nil {
		return nil, err
	}
	return &domain.CartView{Cart: *cart, Items: items}, nil
}
