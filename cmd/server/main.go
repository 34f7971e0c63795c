package main

import (
	"context"
	"log"
	"os"

	"myshop_back_end/internal/config"
	"myshop_back_end/internal/database"
	"myshop_back_end/internal/esewa"
	pa "myshop_back_end/internal/handlers/payement"
	"myshop_back_end/internal/handlers/user"
	"myshop_back_end/internal/orders"
	"myshop_back_end/internal/routes"
	"myshop_back_end/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()

	database.ConnectDatabases()
	defer database.CloseScylla()

	// ✅ Pré-chauffer le cache Redis
	warmupRedisCache()

	gateway := esewa.NewClient(config.LoadEsewa())
	log.Println("✅ Passerelle eSewa initialisée")

	svc := orders.NewService(
		store.NewScyllaUserStore(),
		store.NewScyllaProductStore(),
		store.NewScyllaOrderStore(),
		store.NewRedisCartStore(),
		gateway,
	)
	user.Init(svc)
	pa.Init(svc)

	// 🧹 Purge périodique des commandes eSewa impayées abandonnées
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := orders.NewSweeper(store.NewScyllaOrderStore(), orders.DefaultSweepInterval, orders.DefaultStaleRetention)
	go sweeper.Run(ctx)

	r := gin.Default()
	routes.RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("🚀 Serveur MyShop lancé sur le port", port)
	r.Run(":" + port)
}

// warmupRedisCache pré-chauffe le cache Redis pour éviter la latence du premier appel
func warmupRedisCache() {
	ctx := context.Background()
	// Faire un ping pour établir la connexion
	if err := database.Redis.Ping(ctx).Err(); err == nil {
		log.Println("✅ Cache Redis pré-chauffé")
	}
}
