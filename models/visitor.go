package models

// Visitor dikunci oleh nomor identitas (IDNumber); nomor yang sama selalu
// mengarah ke baris yang sama.
type Visitor struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	IDNumber    string `gorm:"type:varchar(64);uniqueIndex;not null" json:"id_number"`
	PhoneNumber string `gorm:"type:varchar(32)" json:"phone_number"`
	CardType    string `gorm:"type:varchar(50)" json:"card_type"`
}
