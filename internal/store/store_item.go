package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/niramay/internal/model"
)

type ItemStore struct {
	db DBTX
}

func NewItemStore(db DBTX) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) WithTx(tx *sql.Tx) *ItemStore {
	return &ItemStore{db: tx}
}

func scanItem(sc scanner) (*model.EcoStoreItem, error) {
	var it model.EcoStoreItem
	var active int

	err := sc.Scan(&it.ID, &it.Name, &it.Description, &it.PointCost, &it.Quantity, &active, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}

	it.IsActive = active != 0
	return &it, nil
}

const itemCols = `id, name, description, point_cost, quantity, is_active, created_at, updated_at`

func (s *ItemStore) Create(name, description string, pointCost, quantity int, active bool) (*model.EcoStoreItem, error) {
	result, err := s.db.Exec(
		`INSERT INTO eco_store_items (name, description, point_cost, quantity, is_active) VALUES (?, ?, ?, ?, ?)`,
		name, description, pointCost, quantity, boolToInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert store item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ItemStore) GetByID(id int64) (*model.EcoStoreItem, error) {
	row := s.db.QueryRow(`SELECT `+itemCols+` FROM eco_store_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get store item: %w", err)
	}
	return it, nil
}

// List returns all items, active first, then by name.
func (s *ItemStore) List() ([]model.EcoStoreItem, error) {
	return s.list(`SELECT ` + itemCols + ` FROM eco_store_items ORDER BY is_active DESC, name ASC`)
}

// ListActive returns only active items, ordered by point cost then name.
func (s *ItemStore) ListActive() ([]model.EcoStoreItem, error) {
	return s.list(`SELECT ` + itemCols + ` FROM eco_store_items WHERE is_active = 1 ORDER BY point_cost ASC, name ASC`)
}

func (s *ItemStore) list(query string) ([]model.EcoStoreItem, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list store items: %w", err)
	}
	defer rows.Close()

	var items []model.EcoStoreItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ItemStore) Update(id int64, name, description string, pointCost, quantity int, active bool) (*model.EcoStoreItem, error) {
	_, err := s.db.Exec(
		`UPDATE eco_store_items SET name = ?, description = ?, point_cost = ?, quantity = ?, is_active = ?,
		        updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, description, pointCost, quantity, boolToInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update store item: %w", err)
	}
	return s.GetByID(id)
}

func (s *ItemStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM eco_store_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete store item: %w", err)
	}
	return nil
}

// DecrementStock removes quantity units from stock if enough remain. It
// reports false when stock was insufficient and nothing changed.
func (s *ItemStore) DecrementStock(id int64, quantity int) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE eco_store_items SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND quantity >= ?`,
		quantity, id, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
