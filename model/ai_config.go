package model

import (
	"time"
)

// AIConfig holds a configuration profile for the completion model. Exactly
// one profile is treated as active at a time; the engine reads its system
// prompt and model parameters on every turn.
type AIConfig struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	ModelName    string    `gorm:"type:varchar(100);default:'gpt-4o-mini'" json:"model_name"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt"`
	MaxTokens    int       `gorm:"default:1000" json:"max_tokens"`
	Temperature  float32   `gorm:"default:0.7" json:"temperature"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for AIConfig
func (AIConfig) TableName() string {
	return "ai_configs"
}
