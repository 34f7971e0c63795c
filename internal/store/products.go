package store

import (
	"context"
	"fmt"
	"time"

	"myshop_back_end/internal/database"
	"myshop_back_end/internal/models"
	"myshop_back_end/internal/orders"

	"github.com/gocql/gocql"
)

type ScyllaProductStore struct{}

func NewScyllaProductStore() *ScyllaProductStore {
	return &ScyllaProductStore{}
}

func (s *ScyllaProductStore) FindByID(ctx context.Context, productID string) (*models.Product, error) {
	session, err := database.GetProductsSession()
	if err != nil {
		return nil, err
	}

	productUUID, err := gocql.ParseUUID(productID)
	if err != nil {
		return nil, orders.ErrProductNotFound
	}

	var product models.Product

	err = session.Query(database.CQLGetProductByID, productUUID).WithContext(ctx).
		Scan(&product.ID, &product.Name, &product.Price, &product.Stock)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// DecrementStock retire qty unités du stock d'un produit via une boucle
// compare-and-set : le stock ne devient jamais négatif, même sous commandes
// concurrentes sur le même produit.
func (s *ScyllaProductStore) DecrementStock(ctx context.Context, productID string, qty int) error {
	session, err := database.GetProductsSession()
	if err != nil {
		return err
	}

	productUUID, err := gocql.ParseUUID(productID)
	if err != nil {
		return orders.ErrProductNotFound
	}

	for i := 0; i < casRetries; i++ {
		var stock int
		var name string
		err := session.Query("SELECT stock, name FROM products WHERE product_id = ?", productUUID).
			WithContext(ctx).Scan(&stock, &name)
		if err == gocql.ErrNotFound {
			return orders.ErrProductNotFound
		}
		if err != nil {
			return err
		}

		if stock < qty {
			return &orders.InsufficientStockError{ProductName: name}
		}

		var prev int
		applied, err := session.Query("UPDATE products SET stock = ?, updated_at = ? WHERE product_id = ? IF stock = ?",
			stock-qty, time.Now(), productUUID, stock).WithContext(ctx).ScanCAS(&prev)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}

	return fmt.Errorf("contention sur le stock du produit %s", productID)
}
