package repository

import (
	"context"
	"errors"
	"fmt"

	"factorlab/types"

	"github.com/jackc/pgx/v5"
)

// GetSecurity retrieves a types.Security by its identifier.
func (db *Database) GetSecurity(ctx context.Context, id types.SecurityID) (types.Security, error) {
	row, err := db.securities.GetSecurity(ctx, GetSecurityParams{Kind: string(id.Kind), Symbol: id.Symbol})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Security{}, fmt.Errorf("%s %s %w", id.Kind, id.Symbol, ErrSecurityNotFound)
		}
		return types.Security{}, err
	}
	return convertSecurity(row)
}

// ListSecurities returns every security the datasource has returns for.
func (db *Database) ListSecurities(ctx context.Context) ([]types.Security, error) {
	rows, err := db.securities.ListSecurities(ctx)
	if err != nil {
		return nil, err
	}
	securities := make([]types.Security, 0, len(rows))
	for _, row := range rows {
		s, err := convertSecurity(row)
		if err != nil {
			return nil, err
		}
		securities = append(securities, s)
	}
	return securities, nil
}

func convertSecurity(row SecurityRow) (types.Security, error) {
	kind, err := types.ParseSymbolKind(row.Kind)
	if err != nil {
		return types.Security{}, err
	}
	return types.Security{
		ID:     types.SecurityID{Kind: kind, Symbol: row.Symbol},
		Name:   row.Name,
		Sector: row.Sector,
	}, nil
}
