package models

type User struct {
	ID          string `json:"user_id"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email"`
	Role        string `json:"role,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
	Points      int    `json:"points"` // solde Style Perks, jamais négatif
}
