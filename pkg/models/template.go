package models

// Template is a store's message body for one event kind, keyed by (StoreID, Key).
type Template struct {
	ID          int64     `db:"id"           json:"-"`
	StoreID     string    `db:"store_id"     json:"-"`
	Key         EventKind `db:"tkey"         json:"tkey"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Body        string    `db:"body"         json:"body"`
}
