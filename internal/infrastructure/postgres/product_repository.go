package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buyback-hub/buyback-hub/internal/domain/catalog"
)

// ProductRepository implements catalog.Repository.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, product_id, name, article, price, description, quantity_total, quantity_completed, limit_per_user, limit_per_user_days, is_active, created_at, updated_at`

func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (product_id, name, article, price, description, quantity_total, quantity_completed, limit_per_user, limit_per_user_days, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ProductID, p.Name, p.Article, p.Price, p.Description, p.QuantityTotal, p.QuantityCompleted, p.LimitPerUser, p.LimitPerUserDays, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE products SET name=$1, article=$2, price=$3, description=$4, quantity_total=$5, limit_per_user=$6, limit_per_user_days=$7, is_active=$8, updated_at=NOW()
		WHERE product_id=$9
	`, p.Name, p.Article, p.Price, p.Description, p.QuantityTotal, p.LimitPerUser, p.LimitPerUserDays, p.IsActive, p.ProductID)
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id=$1`, productID)
	return scanProduct(row)
}

func (r *ProductRepository) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*catalog.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) IncrementCompleted(ctx context.Context, productID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE products SET quantity_completed=quantity_completed+1, updated_at=NOW() WHERE product_id=$1
	`, productID)
	return err
}

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var p catalog.Product
	if err := row.Scan(&p.ID, &p.ProductID, &p.Name, &p.Article, &p.Price, &p.Description,
		&p.QuantityTotal, &p.QuantityCompleted, &p.LimitPerUser, &p.LimitPerUserDays,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
