package cache

import (
	"context"
	"encoding/json"
	"time"

	"myshop_back_end/internal/database"
	"myshop_back_end/internal/models"

	"github.com/gocql/gocql"
)

const (
	UserCacheTTL    = 5 * time.Minute
	ProductCacheTTL = 10 * time.Minute
)

// GetUserFromCache récupère l'identité d'un utilisateur depuis Redis ou
// ScyllaDB. Le solde de points n'est PAS servi depuis ce cache : les
// opérations de commande lisent toujours le solde en base pour rester
// correctes sous mutation concurrente.
func GetUserFromCache(userID string) (*models.User, error) {
	ctx := context.Background()
	key := "user:" + userID

	// 1. Essayer le cache Redis
	data, err := database.Redis.Get(ctx, key).Result()
	if err == nil {
		var user models.User
		if json.Unmarshal([]byte(data), &user) == nil {
			return &user, nil
		}
	}

	// 2. Récupérer de ScyllaDB
	session, err := database.GetUsersSession()
	if err != nil {
		return nil, err
	}

	var (
		email, name, role string
	)

	err = session.Query("SELECT email, name, role FROM users WHERE user_id = ?", userID).
		Scan(&email, &name, &role)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:    userID,
		Email: email,
		Name:  name,
		Role:  role,
	}

	// 3. Mettre en cache
	jsonData, _ := json.Marshal(user)
	database.Redis.Set(ctx, key, jsonData, UserCacheTTL)

	return user, nil
}

// GetProductNamesFromCache récupère plusieurs noms de produits
func GetProductNamesFromCache(productIDs []string) map[string]string {
	ctx := context.Background()
	result := make(map[string]string)
	missingIDs := []string{}

	// 1. Essayer de récupérer depuis Redis
	for _, productID := range productIDs {
		key := "product_name:" + productID
		name, err := database.Redis.Get(ctx, key).Result()
		if err == nil {
			result[productID] = name
		} else {
			missingIDs = append(missingIDs, productID)
		}
	}

	// 2. Récupérer les produits manquants depuis ScyllaDB
	if len(missingIDs) > 0 {
		session, err := database.GetProductsSession()
		if err == nil {
			for _, productID := range missingIDs {
				pid, err := gocql.ParseUUID(productID)
				if err != nil {
					continue
				}
				var name string
				err = session.Query("SELECT name FROM products WHERE product_id = ?", pid).Scan(&name)
				if err == nil {
					result[productID] = name
					// Mettre en cache
					database.Redis.Set(ctx, "product_name:"+productID, name, ProductCacheTTL)
				}
			}
		}
	}

	return result
}
