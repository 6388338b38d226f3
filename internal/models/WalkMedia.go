package models

type WalkMedia struct {
	ID              string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	WalkID          string `json:"walk_id" gorm:"index;type:varchar(36)"`
	Kind            string `json:"kind"` // "camera", "gallery"
	LocalIdentifier string `json:"local_identifier"`
	Position        int    `json:"position"`
}

func (WalkMedia) TableName() string {
	return "walk_media"
}
