package models

import "time"

// ActivityLog 管理端操作审计（增删改物品、PIN 解锁、手动记录等）
type ActivityLog struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	Action    string    `gorm:"size:255;not null" json:"action"`
	Actor     string    `gorm:"size:64;index" json:"actor"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (ActivityLog) TableName() string { return "crib_activity_logs" }
