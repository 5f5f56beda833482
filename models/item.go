// models/item.go
package models

import "time"

const ItemTable = "crib_items"

const (
	ItemStatusAvailable = "Available"
	ItemStatusBorrowed  = "Borrowed"
)

type Item struct {
	ID                string    `gorm:"size:64;primaryKey" json:"itemId"`
	Name              string    `gorm:"size:200;not null" json:"name"`
	TotalQuantity     Quantity  `gorm:"not null" json:"totalQuantity"`
	AvailableQuantity Quantity  `gorm:"not null" json:"availableQuantity"`
	Unit              string    `gorm:"size:40" json:"unit"`
	Location          string    `gorm:"size:120" json:"location"`
	ImageRef          string    `gorm:"type:text" json:"imageRef"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Item) TableName() string { return ItemTable }

// IsUnlimited 任一数量为 Unlimited 即视为不计库存
func (it *Item) IsUnlimited() bool {
	return it.TotalQuantity.IsUnlimited() || it.AvailableQuantity.IsUnlimited()
}

// Status 列表展示用：有库存或不限量 → Available，否则 Borrowed
func (it *Item) Status() string {
	if it.IsUnlimited() {
		return ItemStatusAvailable
	}
	if n, _ := it.AvailableQuantity.Count(); n > 0 {
		return ItemStatusAvailable
	}
	return ItemStatusBorrowed
}
