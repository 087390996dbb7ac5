package service

import (
	"context"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/store"
)

// Reference serves the read-only lookup tables.
type Reference struct {
	store store.Store
}

func NewReference(st store.Store) *Reference {
	return &Reference{store: st}
}

func (r *Reference) Cities(ctx context.Context) ([]domain.City, error) {
	out := []domain.City{}
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		cities, err := tx.ListCities(ctx)
		out = append(out, cities...)
		return err
	})
	return out, err
}

func (r *Reference) Categories(ctx context.Context) ([]domain.Category, error) {
	out := []domain.Category{}
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		categories, err := tx.ListCategories(ctx)
		out = append(out, categories...)
		return err
	})
	return out, err
}
