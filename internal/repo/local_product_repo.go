// Package repo 实现数据访问层，负责与本地商品库的交互。
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MorseWayne/shopfront/internal/domain"
)

// LocalProductRepository 定义本地商品数据访问接口。
// 商品 ID 对外统一为 local-<n>，n 为表的自增主键。
type LocalProductRepository interface {
	Add(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetAll(ctx context.Context) ([]*domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Put(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
}

// localProductRepo 实现LocalProductRepository接口
type localProductRepo struct {
	db *sql.DB
}

// NewLocalProductRepository 创建本地商品仓储实例，MySQL 与 SQLite 共用同一套 SQL
func NewLocalProductRepository(db *sql.DB) LocalProductRepository {
	return &localProductRepo{db: db}
}

const selectLocalProduct = `
	SELECT id, title, description, category, price, image, rating_rate, rating_count
	FROM local_products`

// Add 新增商品并返回带 ID 的记录
func (r *localProductRepo) Add(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		INSERT INTO local_products (title, description, category, price, image, rating_rate, rating_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	rate, count := ratingArgs(product.Rating)
	result, err := r.db.ExecContext(ctx, query,
		product.Title,
		product.Description,
		product.Category,
		product.Price,
		product.Image,
		rate,
		count,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add local product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	created := product.Clone()
	created.ID = FormatLocalID(id)
	created.IsLocal = true
	return created, nil
}

// GetAll 按主键升序返回全部商品
func (r *localProductRepo) GetAll(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, selectLocalProduct+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query local products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanLocalProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan local product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate local products: %w", err)
	}

	return products, nil
}

// GetByID 根据ID获取商品，不存在时返回 nil, nil
func (r *localProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	key, ok := ParseLocalID(id)
	if !ok {
		return nil, nil
	}

	product, err := scanLocalProduct(r.db.QueryRowContext(ctx, selectLocalProduct+` WHERE id = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get local product by id: %w", err)
	}

	return product, nil
}

// Put 在事务内按 ID 插入或整体覆盖商品
func (r *localProductRepo) Put(ctx context.Context, product *domain.Product) error {
	key, ok := ParseLocalID(product.ID)
	if !ok {
		return fmt.Errorf("invalid local product id %q", product.ID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM local_products WHERE id = ?`, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check local product: %w", err)
	}

	rate, count := ratingArgs(product.Rating)
	if exists > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE local_products
			SET title = ?, description = ?, category = ?, price = ?, image = ?,
				rating_rate = ?, rating_count = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, product.Title, product.Description, product.Category, product.Price, product.Image, rate, count, key)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO local_products (id, title, description, category, price, image, rating_rate, rating_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, key, product.Title, product.Description, product.Category, product.Price, product.Image, rate, count)
	}
	if err != nil {
		return fmt.Errorf("failed to put local product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete 删除商品，不存在时为空操作
func (r *localProductRepo) Delete(ctx context.Context, id string) error {
	key, ok := ParseLocalID(id)
	if !ok {
		return nil
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_products WHERE id = ?`, key); err != nil {
		return fmt.Errorf("failed to delete local product: %w", err)
	}
	return nil
}

// FormatLocalID 将自增主键转为对外 ID
func FormatLocalID(key int64) string {
	return domain.LocalIDPrefix + strconv.FormatInt(key, 10)
}

// ParseLocalID 解析对外 ID，非本地命名空间或格式错误时 ok 为 false
func ParseLocalID(id string) (int64, bool) {
	if !domain.IsLocalID(id) {
		return 0, false
	}
	key, err := strconv.ParseInt(strings.TrimPrefix(id, domain.LocalIDPrefix), 10, 64)
	if err != nil || key <= 0 {
		return 0, false
	}
	return key, true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocalProduct(row rowScanner) (*domain.Product, error) {
	var (
		key   int64
		rate  sql.NullFloat64
		count sql.NullInt64
	)
	product := &domain.Product{IsLocal: true}
	err := row.Scan(
		&key,
		&product.Title,
		&product.Description,
		&product.Category,
		&product.Price,
		&product.Image,
		&rate,
		&count,
	)
	if err != nil {
		return nil, err
	}

	product.ID = FormatLocalID(key)
	if rate.Valid && count.Valid {
		product.Rating = &domain.Rating{Rate: rate.Float64, Count: int(count.Int64)}
	}
	return product, nil
}

func ratingArgs(r *domain.Rating) (any, any) {
	if r == nil {
		return nil, nil
	}
	return r.Rate, r.Count
}
