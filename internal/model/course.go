package model

// swagger:model Course
type Course struct {
	UUIDBase
	OwnerID     uint          `gorm:"index;type:bigint unsigned" json:"ownerId"`
	Title       string        `gorm:"size:255;not null" json:"title"`
	Subject     string        `gorm:"size:100;not null" json:"subject"`
	Description string        `gorm:"type:text" json:"description"`
	Difficulty  string        `gorm:"size:20;default:'medium'" json:"difficulty"`
	Topics      []CourseTopic `gorm:"foreignKey:CourseID" json:"topics,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// swagger:model CourseTopic
type CourseTopic struct {
	UUIDBase
	CourseID    string `gorm:"index;type:varchar(36);not null" json:"courseId"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Order       int    `gorm:"default:0" json:"order"`
}

func (CourseTopic) TableName() string {
	return "course_topics"
}
