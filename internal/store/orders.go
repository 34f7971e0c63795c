package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"myshop_back_end/internal/database"
	"myshop_back_end/internal/models"
	"myshop_back_end/internal/orders"

	"github.com/gocql/gocql"
)

// ScyllaOrderStore persiste les commandes dans le keyspace orders :
// table `orders` (clé order_id) + table miroir `orders_by_user`
// (clé user_id, clustering created_at DESC) pour l'historique.
type ScyllaOrderStore struct{}

func NewScyllaOrderStore() *ScyllaOrderStore {
	return &ScyllaOrderStore{}
}

func (s *ScyllaOrderStore) Insert(ctx context.Context, order *models.Order) error {
	session, err := database.GetOrdersSession()
	if err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}

	err = session.Query(database.CQLInsertOrder,
		order.ID, order.UserID, string(itemsJSON),
		order.SubTotal, order.Discount, order.ShippingPrice, order.TotalAmount,
		order.PointsUsed, order.PointsEarned, order.PointsAccrued, order.StockEngaged,
		order.FullName, order.PhoneNumber, order.Address,
		order.PaymentMethod, order.PaymentStatus, order.Status,
		order.CreatedAt).WithContext(ctx).Exec()
	if err != nil {
		return err
	}

	// Miroir pour l'historique par utilisateur
	err = session.Query(database.CQLInsertOrderUser,
		order.UserID, order.CreatedAt, order.ID,
		order.Status, order.PaymentStatus, order.PaymentMethod, order.TotalAmount).
		WithContext(ctx).Exec()
	if err != nil {
		log.Printf("⚠️ Erreur insertion orders_by_user pour %s: %v", order.ID, err)
	}

	return nil
}

func (s *ScyllaOrderStore) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return nil, err
	}

	orderUUID, err := gocql.ParseUUID(orderID)
	if err != nil {
		return nil, nil
	}

	var (
		order     models.Order
		itemsJSON string
	)

	err = session.Query(database.CQLGetOrderByID, orderUUID).WithContext(ctx).Scan(
		&order.ID, &order.UserID, &itemsJSON,
		&order.SubTotal, &order.Discount, &order.ShippingPrice, &order.TotalAmount,
		&order.PointsUsed, &order.PointsEarned, &order.PointsAccrued, &order.StockEngaged,
		&order.FullName, &order.PhoneNumber, &order.Address,
		&order.PaymentMethod, &order.PaymentStatus, &order.Status,
		&order.Timeline.ProcessingAt, &order.Timeline.ShippedAt, &order.Timeline.DeliveredAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &order.Items); err != nil {
			return nil, err
		}
	}

	return &order, nil
}

// MarkPaid bascule unpaid → paid en une seule écriture conditionnelle LWT.
// Le drapeau points_accrued est levé dans la même écriture : le chemin
// "livraison" ne pourra plus créditer une deuxième fois.
func (s *ScyllaOrderStore) MarkPaid(ctx context.Context, orderID string, pointsEarned int, now time.Time) (bool, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return false, err
	}

	orderUUID, err := gocql.ParseUUID(orderID)
	if err != nil {
		return false, orders.ErrOrderNotFound
	}

	// Clés du miroir, récupérées avant la bascule
	var userID string
	var createdAt time.Time
	err = session.Query("SELECT user_id, created_at FROM orders WHERE order_id = ?", orderUUID).
		WithContext(ctx).Scan(&userID, &createdAt)
	if err == gocql.ErrNotFound {
		return false, orders.ErrOrderNotFound
	}
	if err != nil {
		return false, err
	}

	var prevStatus string
	applied, err := session.Query(`UPDATE orders SET payment_status = ?, status = ?, points_earned = ?, points_accrued = true,
		processing_at = ?, updated_at = ? WHERE order_id = ? IF payment_status = ?`,
		models.PaymentStatusPaid, models.StatusProcessing, pointsEarned,
		now, now, orderUUID, models.PaymentStatusUnpaid).
		WithContext(ctx).ScanCAS(&prevStatus)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	err = session.Query(`UPDATE orders_by_user SET status = ?, payment_status = ? WHERE user_id = ? AND created_at = ? AND order_id = ?`,
		models.StatusProcessing, models.PaymentStatusPaid, userID, createdAt, orderUUID).
		WithContext(ctx).Exec()
	if err != nil {
		log.Printf("⚠️ Erreur mise à jour orders_by_user pour %s: %v", orderID, err)
	}

	return true, nil
}

// MarkAccrued lève le drapeau one-shot points_accrued.
func (s *ScyllaOrderStore) MarkAccrued(ctx context.Context, orderID string) (bool, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return false, err
	}

	orderUUID, err := gocql.ParseUUID(orderID)
	if err != nil {
		return false, orders.ErrOrderNotFound
	}

	var prev bool
	applied, err := session.Query("UPDATE orders SET points_accrued = true WHERE order_id = ? IF points_accrued = false",
		orderUUID).WithContext(ctx).ScanCAS(&prev)
	if err != nil {
		return false, err
	}
	return applied, nil
}

// MarkStockEngaged lève le drapeau one-shot stock_engaged. Seul le gagnant
// de cette écriture conditionnelle décrémente le stock de la commande.
func (s *ScyllaOrderStore) MarkStockEngaged(ctx context.Context, orderID string) (bool, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return false, err
	}

	orderUUID, err := gocql.ParseUUID(orderID)
	if err != nil {
		return false, orders.ErrOrderNotFound
	}

	var prev bool
	applied, err := session.Query("UPDATE orders SET stock_engaged = true WHERE order_id = ? IF stock_engaged = false",
		orderUUID).WithContext(ctx).ScanCAS(&prev)
	if err != nil {
		return false, err
	}
	return applied, nil
}

// UpdateStatus ne réécrit que le statut et la timeline. Les drapeaux
// points_accrued et stock_engaged ne passent jamais par ici : les persister
// depuis une lecture antérieure écraserait une bascule LWT concurrente.
func (s *ScyllaOrderStore) UpdateStatus(ctx context.Context, order *models.Order) error {
	session, err := database.GetOrdersSession()
	if err != nil {
		return err
	}

	err = session.Query(`UPDATE orders SET status = ?, processing_at = ?, shipped_at = ?, delivered_at = ?, updated_at = ?
		WHERE order_id = ?`,
		order.Status,
		order.Timeline.ProcessingAt, order.Timeline.ShippedAt, order.Timeline.DeliveredAt,
		order.UpdatedAt, order.ID).WithContext(ctx).Exec()
	if err != nil {
		return err
	}

	err = session.Query(`UPDATE orders_by_user SET status = ? WHERE user_id = ? AND created_at = ? AND order_id = ?`,
		order.Status, order.UserID, order.CreatedAt, order.ID).WithContext(ctx).Exec()
	if err != nil {
		log.Printf("⚠️ Erreur mise à jour orders_by_user pour %s: %v", order.ID, err)
	}

	return nil
}

// DeleteIfUnpaid supprime une commande seulement si elle est encore impayée
// (suppression conditionnelle LWT, une seule étape).
func (s *ScyllaOrderStore) DeleteIfUnpaid(ctx context.Context, orderID string) (bool, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return false, err
	}

	orderUUID, err := gocql.ParseUUID(orderID)
	if err != nil {
		return false, nil
	}

	var userID string
	var createdAt time.Time
	err = session.Query("SELECT user_id, created_at FROM orders WHERE order_id = ?", orderUUID).
		WithContext(ctx).Scan(&userID, &createdAt)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var prevStatus string
	applied, err := session.Query("DELETE FROM orders WHERE order_id = ? IF payment_status = ?",
		orderUUID, models.PaymentStatusUnpaid).WithContext(ctx).ScanCAS(&prevStatus)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	err = session.Query("DELETE FROM orders_by_user WHERE user_id = ? AND created_at = ? AND order_id = ?",
		userID, createdAt, orderUUID).WithContext(ctx).Exec()
	if err != nil {
		log.Printf("⚠️ Erreur suppression orders_by_user pour %s: %v", orderID, err)
	}

	return true, nil
}

// DeleteStaleUnpaidGateway purge les commandes eSewa impayées créées avant
// `olderThan`. Chaque suppression reste conditionnelle : un paiement vérifié
// pendant la passe ne sera jamais purgé.
func (s *ScyllaOrderStore) DeleteStaleUnpaidGateway(ctx context.Context, olderThan time.Time) (int, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return 0, err
	}

	// Scan filtré : volume faible par construction (rétention de quelques
	// minutes seulement)
	iter := session.Query(`SELECT order_id, user_id, created_at FROM orders
		WHERE payment_method = ? AND payment_status = ? ALLOW FILTERING`,
		models.PaymentMethodEsewa, models.PaymentStatusUnpaid).WithContext(ctx).Iter()

	type staleOrder struct {
		id        gocql.UUID
		userID    string
		createdAt time.Time
	}

	var stale []staleOrder
	var id gocql.UUID
	var userID string
	var createdAt time.Time

	for iter.Scan(&id, &userID, &createdAt) {
		if createdAt.Before(olderThan) {
			stale = append(stale, staleOrder{id: id, userID: userID, createdAt: createdAt})
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	purged := 0
	for _, so := range stale {
		var prevStatus string
		applied, err := session.Query("DELETE FROM orders WHERE order_id = ? IF payment_status = ?",
			so.id, models.PaymentStatusUnpaid).WithContext(ctx).ScanCAS(&prevStatus)
		if err != nil {
			log.Printf("⚠️ Erreur purge commande %s: %v", so.id, err)
			continue
		}
		if !applied {
			continue
		}

		if err := session.Query("DELETE FROM orders_by_user WHERE user_id = ? AND created_at = ? AND order_id = ?",
			so.userID, so.createdAt, so.id).WithContext(ctx).Exec(); err != nil {
			log.Printf("⚠️ Erreur purge orders_by_user pour %s: %v", so.id, err)
		}
		purged++
	}

	return purged, nil
}

// ListByUser retourne l'historique de commandes, la plus récente d'abord
// (ordre de clustering de orders_by_user).
func (s *ScyllaOrderStore) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	session, err := database.GetOrdersSession()
	if err != nil {
		return nil, err
	}

	iter := session.Query("SELECT order_id FROM orders_by_user WHERE user_id = ?", userID).
		WithContext(ctx).Iter()

	var ids []gocql.UUID
	var id gocql.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	result := make([]models.Order, 0, len(ids))
	for _, orderID := range ids {
		order, err := s.FindByID(ctx, orderID.String())
		if err != nil {
			return nil, err
		}
		if order == nil {
			// Purgée entre les deux lectures
			continue
		}
		result = append(result, *order)
	}

	return result, nil
}

// HasPaidOrDelivered indique si l'utilisateur a une commande payée ou livrée
// contenant le produit (éligibilité aux avis).
func (s *ScyllaOrderStore) HasPaidOrDelivered(ctx context.Context, userID, productID string) (bool, error) {
	userOrders, err := s.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, order := range userOrders {
		if order.PaymentStatus != models.PaymentStatusPaid && order.Status != models.StatusDelivered {
			continue
		}
		for _, item := range order.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}

	return false, nil
}
