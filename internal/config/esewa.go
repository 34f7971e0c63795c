package config

import "os"

// EsewaConfig regroupe les paramètres marchand eSewa.
// Les valeurs par défaut correspondent à l'environnement de test (UAT) eSewa.
type EsewaConfig struct {
	ProductCode string
	SecretKey   string
	SuccessURL  string
	FailureURL  string
}

func LoadEsewa() EsewaConfig {
	cfg := EsewaConfig{
		ProductCode: os.Getenv("ESEWA_PRODUCT_CODE"),
		SecretKey:   os.Getenv("ESEWA_SECRET_KEY"),
		SuccessURL:  os.Getenv("ESEWA_SUCCESS_URL"),
		FailureURL:  os.Getenv("ESEWA_FAILURE_URL"),
	}

	if cfg.ProductCode == "" {
		cfg.ProductCode = "EPAYTEST"
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = "8gBm/:&EnhH.1/q"
	}
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = "http://localhost:5173/payment-success"
	}
	if cfg.FailureURL == "" {
		cfg.FailureURL = "http://localhost:5173/cart?status=cancel"
	}

	return cfg
}
