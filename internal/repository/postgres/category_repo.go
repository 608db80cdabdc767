package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

const categoryColumns = `id, name, description, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	c := &domain.Category{}
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	id := category.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
        INSERT INTO categories (id, name, description)
        VALUES ($1, $2, $3)
        RETURNING ` + categoryColumns
	created, err := scanCategory(s.q.QueryRowContext(ctx, query, id, category.Name, category.Description))
	if err != nil {
		if pqCode(err) == "23505" {
			s.log.Warnf("Repository: Attempted to create duplicate category: %s", category.Name)
			return nil, fmt.Errorf("%w: '%s'", domain.ErrCategoryExists, category.Name)
		}
		s.log.Errorf("Repository: Failed to create category '%s': %v", category.Name, err)
		return nil, fmt.Errorf("could not create category: %w", err)
	}
	s.log.Infof("Repository: Category created with ID %s", created.ID)
	return created, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	return s.getCategory(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return s.getCategory(ctx, `SELECT `+categoryColumns+` FROM categories WHERE lower(name) = lower($1)`, name)
}

func (s *Store) getCategory(ctx context.Context, query, arg string) (*domain.Category, error) {
	c, err := scanCategory(s.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("could not retrieve category: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, update domain.CategoryUpdate) (*domain.Category, error) {
	query := `
        UPDATE categories SET
            name        = COALESCE($2, name),
            description = COALESCE($3, description),
            updated_at  = now()
        WHERE id = $1
        RETURNING ` + categoryColumns
	c, err := scanCategory(s.q.QueryRowContext(ctx, query, id, update.Name, update.Description))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, domain.ErrCategoryNotFound
		case pqCode(err) == "23505":
			return nil, domain.ErrCategoryExists
		}
		s.log.Errorf("Repository: Failed to update category %s: %v", id, err)
		return nil, fmt.Errorf("could not update category: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		s.log.Errorf("Repository: Failed to delete category %s: %v", id, err)
		return fmt.Errorf("could not delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not check deleted rows: %w", err)
	}
	if n == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		s.log.Errorf("Repository: Failed to list categories: %v", err)
		return nil, fmt.Errorf("could not list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}
