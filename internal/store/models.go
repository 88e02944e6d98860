package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type User struct {
	ID                string            `db:"id" json:"id"`
	Username          string            `db:"username" json:"username"`
	PasswordHash      string            `db:"password_hash" json:"-"`
	StatusDefinitions StatusDefinitions `db:"status_definitions" json:"statusDefinitions"`
	APIKeys           APIKeys           `db:"api_keys" json:"apiKeys"`
	Version           int64             `db:"version" json:"-"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
}

type Session struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Token     string    `db:"token" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type APIKey struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	KeyHash     string    `json:"keyHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

type StatusDefinition struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type TodoItem struct {
	ID        string `json:"id"`
	Text      string `json:"text" validate:"min=1,max=500"`
	Completed bool   `json:"completed"`
}

type TodoList struct {
	ID    string     `json:"id"`
	Title string     `json:"title" validate:"min=1,max=200"`
	Items []TodoItem `json:"items" validate:"max=100,dive"`
}

type Resource struct {
	Name string `json:"name" validate:"min=1,max=200"`
	Link string `json:"link" validate:"required,url"`
}

type Idea struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"userId"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	Icon        string         `db:"icon" json:"icon"`
	StatusID    *string        `db:"status_id" json:"statusId,omitempty"`
	Todos       TodoLists      `db:"todos" json:"todos"`
	Resources   Resources      `db:"resources" json:"resources"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// IdeaPatch carries the fields of a partial idea update. Nil fields are left
// unchanged.
type IdeaPatch struct {
	Title       *string
	Description *string
	Tags        *[]string
	Icon        *string
	StatusID    *string
	Todos       *[]TodoList
	Resources   *[]Resource
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type IdeaFilter struct {
	StatusID  string
	SortBy    SortField
	SortOrder SortOrder
}

// The embedded collections below are stored as JSONB.

type StatusDefinitions []StatusDefinition

func (s StatusDefinitions) Value() (driver.Value, error) { return jsonValue(s) }
func (s *StatusDefinitions) Scan(src any) error          { return jsonScan(src, s) }

type APIKeys []APIKey

func (k APIKeys) Value() (driver.Value, error) { return jsonValue(k) }
func (k *APIKeys) Scan(src any) error          { return jsonScan(src, k) }

type TodoLists []TodoList

func (t TodoLists) Value() (driver.Value, error) { return jsonValue(t) }
func (t *TodoLists) Scan(src any) error          { return jsonScan(src, t) }

type Resources []Resource

func (r Resources) Value() (driver.Value, error) { return jsonValue(r) }
func (r *Resources) Scan(src any) error          { return jsonScan(src, r) }

func jsonValue[T any](items []T) (driver.Value, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return string(raw), nil
}

func jsonScan(src any, target any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		raw = []byte("[]")
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan jsonb: unsupported type %T", src)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("scan jsonb: %w", err)
	}
	return nil
}
