package models

import (
	"github.com/google/uuid"
)

type Client struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	LocationID uuid.UUID `gorm:"type:uuid;index;not null" json:"locationId"`

	Name          string `gorm:"not null" json:"name"`
	Phone         string `gorm:"not null" json:"phone"`
	LoyaltyPoints int    `gorm:"default:0" json:"loyaltyPoints"`
}

type Agent struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	LocationID uuid.UUID `gorm:"type:uuid;index;not null" json:"locationId"`

	Name  string `gorm:"not null" json:"name"`
	Phone string `json:"phone"`
}

type Service struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	LocationID uuid.UUID `gorm:"type:uuid;index;not null" json:"locationId"`
	Name       string    `gorm:"not null" json:"name"`
	Price      float64   `gorm:"type:decimal(10,2);not null" json:"price"`
	Duration   int       `json:"duration"` // in minutes
}
