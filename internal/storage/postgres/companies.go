package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const companyColumns = `id, name, slug, careers_url, homepage_url, enabled, created_at`

// GetCompany fetches a company by ID.
func (s *Store) GetCompany(ctx context.Context, id string) (ingest.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	var c ingest.Company
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Slug, &c.CareersURL, &c.HomepageURL, &c.Enabled, &c.CreatedAt,
	)
	if err != nil {
		return ingest.Company{}, notFound(err, "company "+id)
	}
	return c, nil
}

// ListEligibleCompanies returns enabled companies with a careers URL, by name.
func (s *Store) ListEligibleCompanies(ctx context.Context) ([]ingest.Company, error) {
	query := `SELECT ` + companyColumns + `
		FROM companies
		WHERE enabled AND careers_url IS NOT NULL
		ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list eligible companies: %w", err)
	}
	defer rows.Close()

	var out []ingest.Company
	for rows.Next() {
		var c ingest.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CareersURL, &c.HomepageURL, &c.Enabled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return out, nil
}
