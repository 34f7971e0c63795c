// Package esewa implémente la poignée de main avec la passerelle de paiement
// eSewa : signature HMAC des formulaires de paiement et décodage du payload
// de redirection renvoyé par la passerelle.
package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"myshop_back_end/internal/config"

	qrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyPayload   = errors.New("payload eSewa vide")
	ErrInvalidPayload = errors.New("payload eSewa illisible")
	ErrBadTransaction = errors.New("transaction_uuid invalide")
)

// PaymentData est le formulaire signé que le client soumet à eSewa.
type PaymentData struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	Signature             string `json:"signature"`
	SignedFieldNames      string `json:"signed_field_names"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
}

// CallbackPayload est le contenu JSON du paramètre `data` (base64) renvoyé
// par la redirection eSewa.
type CallbackPayload struct {
	Status          string `json:"status"`
	TransactionUUID string `json:"transaction_uuid"`
	TotalAmount     string `json:"total_amount"`
	TransactionCode string `json:"transaction_code"`
	RefID           string `json:"ref_id"`
}

type Client struct {
	cfg config.EsewaConfig
}

func NewClient(cfg config.EsewaConfig) *Client {
	return &Client{cfg: cfg}
}

// FormatAmount met un montant au format attendu par eSewa (entier tronqué).
func FormatAmount(amount float64) string {
	return strconv.Itoa(int(math.Floor(amount)))
}

// Sign calcule la signature HMAC-SHA256 (base64) d'un message canonique.
func (c *Client) Sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BuildPaymentData construit le formulaire signé pour une commande.
// Le transaction_uuid embarque l'ID de commande plus un horodatage pour
// distinguer les re-tentatives de paiement sur la même commande.
func (c *Client) BuildPaymentData(orderID string, totalAmount float64, now time.Time) PaymentData {
	formatted := FormatAmount(totalAmount)
	transactionUUID := fmt.Sprintf("%s-%d", orderID, now.UnixMilli())

	signatureString := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		formatted, transactionUUID, c.cfg.ProductCode)

	return PaymentData{
		Amount:                formatted,
		TaxAmount:             "0",
		TotalAmount:           formatted,
		TransactionUUID:       transactionUUID,
		ProductCode:           c.cfg.ProductCode,
		Signature:             c.Sign(signatureString),
		SignedFieldNames:      "total_amount,transaction_uuid,product_code",
		SuccessURL:            c.cfg.SuccessURL,
		FailureURL:            c.cfg.FailureURL + "&oid=" + orderID,
		ProductServiceCharge:  "0",
		ProductDeliveryCharge: "0",
	}
}

// DecodeCallback décode le paramètre `data` de la redirection eSewa
// (enveloppe base64 contenant du JSON).
func DecodeCallback(data string) (CallbackPayload, error) {
	var payload CallbackPayload

	if data == "" {
		return payload, ErrEmptyPayload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		// Certaines redirections arrivent en base64 URL-safe
		raw, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return payload, ErrInvalidPayload
		}
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrInvalidPayload
	}

	return payload, nil
}

// OrderIDFromTransactionUUID retrouve l'ID de commande préfixé dans le
// transaction_uuid ("<uuid>-<millis>"). L'UUID contient lui-même des tirets,
// on coupe donc sur le dernier.
func OrderIDFromTransactionUUID(transactionUUID string) (string, error) {
	idx := strings.LastIndex(transactionUUID, "-")
	if idx <= 0 {
		return "", ErrBadTransaction
	}
	return transactionUUID[:idx], nil
}

// PaymentQR génère un QR code scan-to-pay (PNG encodé base64) pour le
// formulaire signé.
func PaymentQR(data PaymentData) (string, error) {
	content := fmt.Sprintf("esewa://pay?pcd=%s&txn=%s&amt=%s",
		data.ProductCode, data.TransactionUUID, data.TotalAmount)

	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
