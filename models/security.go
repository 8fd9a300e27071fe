package models

// Security adalah petugas jaga yang bertanggung jawab atas satu gerbang.
type Security struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"type:varchar(255);not null" json:"name"`
	AssignGate string `gorm:"type:varchar(50);index" json:"assign_gate"`
	Active     bool   `gorm:"not null;default:false" json:"active"`
	Confirmed  bool   `gorm:"not null;default:false" json:"confirmed"`
}

func (Security) TableName() string {
	return "security"
}
