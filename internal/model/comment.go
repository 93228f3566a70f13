package model

import "time"

type Comment struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Date    time.Time `gorm:"not null;index" json:"date"`
	Name    string    `gorm:"size:64;not null" json:"name"`
	Message string    `gorm:"type:text;not null" json:"message"`
}
