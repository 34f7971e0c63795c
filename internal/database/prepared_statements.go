package database

// Textes CQL partagés des requêtes chaudes du cycle de commande.
//
// gocql prépare chaque requête à sa première exécution et met le prepared
// statement en cache par session : réutiliser le même texte suffit pour en
// bénéficier. Les stores créent donc un *gocql.Query neuf à chaque appel —
// un *gocql.Query lié via Bind n'est pas sûr en usage concurrent, deux
// goroutines pourraient exécuter les valeurs l'une de l'autre.
const (
	CQLGetOrderByID = `SELECT order_id, user_id, items, sub_total, discount, shipping_price, total_amount,
		points_used, points_earned, points_accrued, stock_engaged, full_name, phone_number, address,
		payment_method, payment_status, status, processing_at, shipped_at, delivered_at, created_at, updated_at
		FROM orders WHERE order_id = ?`

	CQLInsertOrder = `INSERT INTO orders (order_id, user_id, items, sub_total, discount, shipping_price, total_amount,
		points_used, points_earned, points_accrued, stock_engaged, full_name, phone_number, address,
		payment_method, payment_status, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	CQLInsertOrderUser = `INSERT INTO orders_by_user (user_id, created_at, order_id, status, payment_status, payment_method, total_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	CQLGetUserPoints = `SELECT points FROM users WHERE user_id = ?`

	CQLGetProductByID = `SELECT product_id, name, price, stock FROM products WHERE product_id = ?`
)
