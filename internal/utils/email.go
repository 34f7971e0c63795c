package utils

import (
	"fmt"
	"log"
	"os"

	"myshop_back_end/internal/models"

	"github.com/wneessen/go-mail"
)

func sendEmail(to, subject, htmlBody string) error {
	msg := mail.NewMsg()

	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "noreply@myshop.com.np"
	}

	if err := msg.From(from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(os.Getenv("SMTP_HOST"),
		mail.WithPort(587),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(os.Getenv("SMTP_USERNAME")),
		mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	log.Println("📤 Envoi de l'e-mail à", to)
	return client.DialAndSend(msg)
}

// SendOrderStatusEmail notifie l'utilisateur d'un changement de statut de
// sa commande.
func SendOrderStatusEmail(order *models.Order, to, status string) error {
	statusLabels := map[string]string{
		models.StatusProcessing: "en préparation",
		models.StatusShipped:    "expédiée",
		models.StatusDelivered:  "livrée",
		models.StatusCancelled:  "annulée",
	}

	label := statusLabels[status]
	if label == "" {
		label = status
	}

	pointsBlock := ""
	if status == models.StatusDelivered && order.PointsEarned > 0 {
		pointsBlock = fmt.Sprintf(`<p>🎉 Vous avez gagné <strong>%d points Style Perks</strong> avec cette commande.</p>`, order.PointsEarned)
	}

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<title>Mise à jour de votre commande</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Votre commande est %s</h2>
		<p>Bonjour %s,</p>
		<p>Votre commande <strong>%s</strong> (total : %.2f Rs) est maintenant <strong>%s</strong>.</p>
		%s
		<p style="font-size: 12px; color: #94a3b8;">MyShop Nepal</p>
	</div>
</body>
</html>`, label, order.FullName, order.ID.String(), order.TotalAmount, label, pointsBlock)

	return sendEmail(to, fmt.Sprintf("Votre commande est %s", label), html)
}

// SendPaymentConfirmationEmail confirme un paiement eSewa vérifié.
func SendPaymentConfirmationEmail(order *models.Order, to string) error {
	itemsHTML := ""
	for _, item := range order.Items {
		itemsHTML += fmt.Sprintf(`
			<tr>
				<td style="padding: 8px; border: 1px solid #ddd;">%s</td>
				<td style="padding: 8px; border: 1px solid #ddd;">%d</td>
				<td style="padding: 8px; border: 1px solid #ddd;">%.2f Rs</td>
			</tr>`, item.Name, item.Quantity, item.Price*float64(item.Quantity))
	}

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<title>Paiement confirmé</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Paiement confirmé ✅</h2>
		<p>Bonjour %s,</p>
		<p>Nous avons bien reçu votre paiement eSewa de <strong>%.2f Rs</strong>.</p>
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 8px; text-align: left; border: 1px solid #ddd;">Produit</th>
					<th style="padding: 8px; text-align: left; border: 1px solid #ddd;">Quantité</th>
					<th style="padding: 8px; text-align: left; border: 1px solid #ddd;">Total</th>
				</tr>
			</thead>
			<tbody>%s</tbody>
		</table>
		<p style="font-size: 12px; color: #94a3b8;">MyShop Nepal</p>
	</div>
</body>
</html>`, order.FullName, order.TotalAmount, itemsHTML)

	return sendEmail(to, "Confirmation de votre paiement MyShop", html)
}
