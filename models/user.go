package models

import (
	"time"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User 的 ID 是外部身份的稳定 key（不是我们生成的），WebAuthn userHandle 直接用它的字节
type User struct {
	ID          string `gorm:"primaryKey;size:64" json:"userId"`
	DisplayName string `gorm:"size:255;not null" json:"displayName"`
	Department  string `gorm:"size:120" json:"department"`
	Cohort      string `gorm:"size:120" json:"cohort"`
	Role        string `gorm:"size:20;not null;default:'member'" json:"role"`
	PinHash     string `gorm:"size:100" json:"-"` // bcrypt，从不下发

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt   time.Time    `json:"registeredAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Credentials []Credential `json:"-"`
}

func (User) TableName() string {
	return "crib_users"
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
func (u *User) HasPin() bool  { return u.PinHash != "" }

// Credential 为每个注册的 Passkey 存档
// 注意：CredentialID / PublicKey 为二进制，Postgres 下为 bytea

type Credential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"size:64;index" json:"userId"`
	CredentialID    []byte    `gorm:"uniqueIndex" json:"credentialId"`
	PublicKey       []byte    `json:"publicKey"`
	AttestationType string    `gorm:"size:64" json:"attestationType"`
	AAGUID          []byte    `json:"aaguid"`
	SignCount       uint32    `json:"signCount"`
	CloneWarning    bool      `json:"cloneWarning"`
	BackupEligible  bool      `json:"backupEligible"`
	BackupState     bool      `json:"backupState"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	LastUsedAt *time.Time `gorm:"index" json:"lastUsedAt,omitempty"`
}

func (Credential) TableName() string { return "crib_credentials" }
