package service

import (
	"context"
	"fmt"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

type CatalogService struct {
	listings port.ListingRepository
	pageSize int
}

func NewCatalogService(listings port.ListingRepository, pageSize int) *CatalogService {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &CatalogService{listings: listings, pageSize: pageSize}
}

type CatalogPage struct {
	Kind     domain.ListingKind
	Page     int
	Listings []domain.Listing
	HasNext  bool
}

// Page returns one page of approved listings of kind, newest first. Pages start at 0.
func (s *CatalogService) Page(ctx context.Context, kind domain.ListingKind, page int) (CatalogPage, error) {
	if page < 0 {
		page = 0
	}
	items, err := s.listings.CatalogPage(ctx, kind, page*s.pageSize, s.pageSize+1)
	if err != nil {
		return CatalogPage{}, fmt.Errorf("catalog page: %w", err)
	}

	res := CatalogPage{Kind: kind, Page: page}
	if len(items) > s.pageSize {
		res.HasNext = true
		items = items[:s.pageSize]
	}
	res.Listings = items
	return res, nil
}

// Card returns a published listing; anything not approved is reported as not found.
func (s *CatalogService) Card(ctx context.Context, listingID int64) (domain.Listing, error) {
	l, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	if l.Status != domain.ListingStatusApproved {
		return domain.Listing{}, fmt.Errorf("%w: listing %d is not published", domain.ErrNotFound, listingID)
	}
	return l, nil
}
