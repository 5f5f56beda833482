// Package sheet reads the legacy spreadsheet workbook (Inventory / Users
// sheets) so an existing crib can be moved into the database.
package sheet

import (
	"fmt"
	"io"
	"strings"

	"Gin_postgres_redis_tool_crib/models"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/spf13/cast"
)

const (
	SheetInventory = "Inventory"
	SheetUsers     = "Users"
)

// 表头（不区分大小写），列顺序不固定
var (
	inventoryHeaders = map[string]string{
		"tool id":       "id",
		"tool name":     "name",
		"total qty":     "total",
		"available qty": "available",
		"unit":          "unit",
		"location":      "location",
		"image url":     "image",
	}
	userHeaders = map[string]string{
		"user id":    "id",
		"full name":  "name",
		"department": "department",
		"cohort":     "cohort",
		"role":       "role",
		"pin":        "pin",
	}
)

type UserRow struct {
	User models.User
	Pin  string // 旧表里是明文，导入时重新哈希
}

// RowError 某一行无法解析，跳过但不影响其它行
type RowError struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"` // Excel 行号，从 1 开始
	Err   string `json:"error"`
}

type Workbook struct {
	Items   []models.Item `json:"items"`
	Users   []UserRow     `json:"-"`
	Skipped []RowError    `json:"skipped"`
}

// Parse 读取 xlsx；缺少某个 sheet 时该部分为空
func Parse(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	wb := &Workbook{}

	rows := f.GetRows(SheetInventory)
	if len(rows) > 0 {
		cols := headerIndex(rows[0], inventoryHeaders)
		if _, ok := cols["id"]; !ok {
			return nil, fmt.Errorf("sheet %s: missing Tool ID column", SheetInventory)
		}
		for i, row := range rows[1:] {
			it, err := parseItem(row, cols)
			if err != nil {
				wb.Skipped = append(wb.Skipped, RowError{Sheet: SheetInventory, Row: i + 2, Err: err.Error()})
				continue
			}
			if it != nil {
				wb.Items = append(wb.Items, *it)
			}
		}
	}

	rows = f.GetRows(SheetUsers)
	if len(rows) > 0 {
		cols := headerIndex(rows[0], userHeaders)
		if _, ok := cols["id"]; !ok {
			return nil, fmt.Errorf("sheet %s: missing User ID column", SheetUsers)
		}
		for i, row := range rows[1:] {
			u, err := parseUser(row, cols)
			if err != nil {
				wb.Skipped = append(wb.Skipped, RowError{Sheet: SheetUsers, Row: i + 2, Err: err.Error()})
				continue
			}
			if u != nil {
				wb.Users = append(wb.Users, *u)
			}
		}
	}
	return wb, nil
}

func headerIndex(header []string, known map[string]string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		if key, ok := known[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	return cols
}

func cell(row []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// 空行返回 nil, nil
func parseItem(row []string, cols map[string]int) (*models.Item, error) {
	id := cell(row, cols, "id")
	if id == "" {
		return nil, nil
	}
	name := cell(row, cols, "name")
	if name == "" {
		return nil, fmt.Errorf("tool %s: missing name", id)
	}
	total, err := quantity(cell(row, cols, "total"))
	if err != nil {
		return nil, fmt.Errorf("tool %s: total: %w", id, err)
	}
	avail := total
	if s := cell(row, cols, "available"); s != "" {
		if avail, err = quantity(s); err != nil {
			return nil, fmt.Errorf("tool %s: available: %w", id, err)
		}
	}
	return &models.Item{
		ID:                id,
		Name:              name,
		TotalQuantity:     total,
		AvailableQuantity: avail,
		Unit:              cell(row, cols, "unit"),
		Location:          cell(row, cols, "location"),
		ImageRef:          cell(row, cols, "image"),
	}, nil
}

// quantity 数字（Excel 可能给出 "5.0"）或 Unlimited 标记
func quantity(s string) (models.Quantity, error) {
	if s == "" {
		return models.Finite(0), nil
	}
	if q, err := models.ParseQuantity(s); err == nil {
		return q, nil
	}
	n, err := cast.ToUint32E(s)
	if err != nil {
		return models.Quantity{}, fmt.Errorf("invalid quantity %q", s)
	}
	return models.Finite(n), nil
}

func parseUser(row []string, cols map[string]int) (*UserRow, error) {
	id := cell(row, cols, "id")
	if id == "" {
		return nil, nil
	}
	name := cell(row, cols, "name")
	if name == "" {
		return nil, fmt.Errorf("user %s: missing name", id)
	}
	role := models.RoleMember
	if strings.EqualFold(cell(row, cols, "role"), models.RoleAdmin) {
		role = models.RoleAdmin
	}
	return &UserRow{
		User: models.User{
			ID:          id,
			DisplayName: name,
			Department:  cell(row, cols, "department"),
			Cohort:      cell(row, cols, "cohort"),
			Role:        role,
		},
		Pin: cell(row, cols, "pin"),
	}, nil
}
