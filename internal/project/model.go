package project

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is one generated site owned by a single user
type Project struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ProjectSummary is the list view of a project, without its content
type ProjectSummary struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

type ProjectPage struct {
	Data    []ProjectSummary `json:"data"`
	Page    int              `json:"page"`
	HasMore bool             `json:"has_more"`
}
