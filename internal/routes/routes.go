package routes

import (
	"os"
	"strings"
	"time"

	pa "myshop_back_end/internal/handlers/payement"
	"myshop_back_end/internal/handlers/user"
	"myshop_back_end/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine) {
	// ✅ CORS : le front (Vite en dev) vit sur un autre port
	origins := []string{"http://localhost:5173"}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		origins = strings.Split(env, ",")
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	api.Use(middleware.APIRateLimit())

	// --- Public ---
	// Callback eSewa : redirection navigateur depuis la passerelle, pas de JWT
	api.GET("/payment/verify-esewa", pa.VerifyEsewa)
	// Éligibilité avis : token optionnel, toujours 200
	api.GET("/orders/eligibility/:productId", user.CheckReviewEligibility)

	// --- Authentifié ---
	auth := api.Group("/")
	auth.Use(middleware.AuthRequired())
	{
		auth.POST("/orders", user.PlaceOrder)
		auth.GET("/orders", user.GetMyOrders)
		auth.GET("/orders/:id", user.GetOrderByID)

		auth.POST("/payment/initiate-esewa", middleware.PaymentRateLimit(), pa.InitiateEsewa)
		auth.DELETE("/payment/order/:orderId", pa.CancelOrder)

		cart := auth.Group("/cart")
		cart.Use(middleware.CartRateLimit())
		{
			cart.GET("", user.GetCart)
			cart.POST("/add", user.AddToCart)
			cart.DELETE("/clear", user.ClearCart)
			cart.DELETE("/:productId", user.RemoveFromCart)
		}
	}

	// --- Admin ---
	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.RequireAdmin)
	{
		admin.GET("/orders", pa.GetAllOrders)
		admin.GET("/orders/stats", pa.GetOrderStats)
		admin.PUT("/orders/:id/status", pa.UpdateOrderStatus)
	}
}
