package store

import (
	"context"

	"myshop_back_end/internal/database"
)

// RedisCartStore expose la seule opération panier dont le cycle de commande
// a besoin : la suppression, la commande remplaçant le panier.
type RedisCartStore struct{}

func NewRedisCartStore() *RedisCartStore {
	return &RedisCartStore{}
}

func (s *RedisCartStore) DeleteByUser(ctx context.Context, userID string) error {
	return database.RedisClient.Del(ctx, "cart:"+userID).Err()
}
