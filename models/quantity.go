// models/quantity.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Quantity 库存数量：有限数量 或 Unlimited（不计数、不扣减）
// 存储时 -1 表示 Unlimited。不能用 NULL：gorm 读到 NULL 会直接写零值，不走 Scan
type Quantity struct {
	n         uint32
	unlimited bool
}

// UnlimitedLabel 是 JSON 中的 Unlimited 表示
const UnlimitedLabel = "Unlimited"

// 旧表格里使用的“大量”标记
const legacyUnlimitedLabel = "จำนวนมาก"

var Unlimited = Quantity{unlimited: true}

func Finite(n uint32) Quantity { return Quantity{n: n} }

func (q Quantity) IsUnlimited() bool { return q.unlimited }

// Count 返回有限数量；Unlimited 时 ok=false
func (q Quantity) Count() (n uint32, ok bool) {
	if q.unlimited {
		return 0, false
	}
	return q.n, true
}

func (q Quantity) String() string {
	if q.unlimited {
		return UnlimitedLabel
	}
	return strconv.FormatUint(uint64(q.n), 10)
}

// ParseQuantity 接受数字、"Unlimited"（不区分大小写）和旧表格的 "จำนวนมาก"
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == legacyUnlimitedLabel || strings.EqualFold(s, UnlimitedLabel) {
		return Unlimited, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q", s)
	}
	return Finite(uint32(n)), nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.unlimited {
		return json.Marshal(UnlimitedLabel)
	}
	return json.Marshal(q.n)
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseQuantity(s)
		if err != nil {
			return err
		}
		*q = v
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid quantity %s", string(b))
	}
	if n < 0 || n > int64(^uint32(0)) {
		return fmt.Errorf("quantity out of range: %d", n)
	}
	*q = Finite(uint32(n))
	return nil
}

// storedUnlimited 是 Unlimited 在数据库里的值
const storedUnlimited int64 = -1

// GormDataType 让 AutoMigrate 建成 bigint（有符号，能放下 -1 和整个 uint32）
func (Quantity) GormDataType() string { return "bigint" }

func (q Quantity) Value() (driver.Value, error) {
	if q.unlimited {
		return storedUnlimited, nil
	}
	return int64(q.n), nil
}

func (q *Quantity) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return fmt.Errorf("null quantity in storage")
	case int64:
		if v == storedUnlimited {
			*q = Unlimited
			return nil
		}
		if v < 0 || v > int64(^uint32(0)) {
			return fmt.Errorf("quantity out of range in storage: %d", v)
		}
		*q = Finite(uint32(v))
		return nil
	case int32:
		return q.Scan(int64(v))
	case []byte:
		return q.Scan(string(v))
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return q.Scan(n)
		}
		p, err := ParseQuantity(v)
		if err != nil {
			return err
		}
		*q = p
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Quantity", src)
	}
}
