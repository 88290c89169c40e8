package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/stanstork/alumni-sync/internal/models"
)

type DimensionRepository interface {
	Find(ctx context.Context, dim models.Dimension, label string) (models.DimensionEntry, error)
	Insert(ctx context.Context, dim models.Dimension, label string) (models.DimensionEntry, error)
}

type LocationRepository interface {
	ByIDs(ctx context.Context, ids []int64) ([]models.Location, error)
}

type dimensionRepository struct {
	db DBTX
}

func dimensionTable(dim models.Dimension) (string, error) {
	if !dim.Valid() {
		return "", fmt.Errorf("unknown dimension %q", dim)
	}
	return pq.QuoteIdentifier(string(dim)), nil
}

func (r *dimensionRepository) Find(ctx context.Context, dim models.Dimension, label string) (models.DimensionEntry, error) {
	table, err := dimensionTable(dim)
	if err != nil {
		return models.DimensionEntry{}, err
	}

	var entry models.DimensionEntry
	query := fmt.Sprintf(`SELECT id, label FROM %s WHERE label = $1 LIMIT 1`, table)
	if err := r.db.QueryRowContext(ctx, query, label).Scan(&entry.Key, &entry.Label); err != nil {
		return models.DimensionEntry{}, err
	}
	return entry, nil
}

func (r *dimensionRepository) Insert(ctx context.Context, dim models.Dimension, label string) (models.DimensionEntry, error) {
	table, err := dimensionTable(dim)
	if err != nil {
		return models.DimensionEntry{}, err
	}

	var entry models.DimensionEntry
	query := fmt.Sprintf(`INSERT INTO %s (label) VALUES ($1) RETURNING id, label`, table)
	if err := r.db.QueryRowContext(ctx, query, label).Scan(&entry.Key, &entry.Label); err != nil {
		return models.DimensionEntry{}, err
	}
	return entry, nil
}

type locationRepository struct {
	db DBTX
}

func (r *locationRepository) ByIDs(ctx context.Context, ids []int64) ([]models.Location, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, label, COALESCE(city, ''), COALESCE(country, '')
		FROM location
		WHERE id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.Label, &loc.City, &loc.Country); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}
