// Package store fournit les implémentations ScyllaDB / Redis des stores
// injectés dans le cycle de commande. Toutes les mutations partagées
// (points, stock) passent par des écritures conditionnelles LWT : jamais de
// lecture-modification-écriture traversant le réseau.
package store

import (
	"context"
	"fmt"

	"myshop_back_end/internal/database"
	"myshop_back_end/internal/models"
	"myshop_back_end/internal/orders"

	"github.com/gocql/gocql"
)

// Nombre de tentatives d'une boucle compare-and-set avant abandon
const casRetries = 5

type ScyllaUserStore struct{}

func NewScyllaUserStore() *ScyllaUserStore {
	return &ScyllaUserStore{}
}

func (s *ScyllaUserStore) FindByID(ctx context.Context, userID string) (*models.User, error) {
	session, err := database.GetUsersSession()
	if err != nil {
		return nil, err
	}

	var user models.User
	user.ID = userID

	err = session.Query(`SELECT name, email, role, phone_number, address, points
		FROM users WHERE user_id = ?`, userID).WithContext(ctx).
		Scan(&user.Name, &user.Email, &user.Role, &user.PhoneNumber, &user.Address, &user.Points)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// IncrementPoints applique un delta au solde via une boucle compare-and-set
// sur la colonne points. Le solde est plafonné à zéro en bas.
func (s *ScyllaUserStore) IncrementPoints(ctx context.Context, userID string, delta int) error {
	session, err := database.GetUsersSession()
	if err != nil {
		return err
	}

	for i := 0; i < casRetries; i++ {
		var points int
		err := session.Query(database.CQLGetUserPoints, userID).WithContext(ctx).Scan(&points)
		if err == gocql.ErrNotFound {
			return orders.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		newPoints := points + delta
		if newPoints < 0 {
			newPoints = 0
		}

		var prev int
		applied, err := session.Query("UPDATE users SET points = ? WHERE user_id = ? IF points = ?",
			newPoints, userID, points).WithContext(ctx).ScanCAS(&prev)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		// Écriture concurrente : on relit et on retente
	}

	return fmt.Errorf("contention sur le solde de points de %s", userID)
}
