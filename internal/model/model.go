// Package model содержит доменные сущности сервиса LitterAlly.
package model

import "time"

// BinColor описывает цвет физического контейнера для отходов.
type BinColor string

const (
	BinBlue  BinColor = "Blue"
	BinGreen BinColor = "Green"
	BinGray  BinColor = "Gray"
	BinRed   BinColor = "Red"
)

// Valid сообщает, является ли цвет одним из известных.
func (c BinColor) Valid() bool {
	switch c {
	case BinBlue, BinGreen, BinGray, BinRed:
		return true
	}
	return false
}

// CategoryKind описывает тип отходов, к которому относится предмет.
type CategoryKind string

const (
	KindRecyclable CategoryKind = "Recyclable"
	KindCompost    CategoryKind = "Compost"
	KindLandfill   CategoryKind = "Landfill"
	KindHazardous  CategoryKind = "Hazardous"
)

// Valid сообщает, является ли тип одним из известных.
func (k CategoryKind) Valid() bool {
	switch k {
	case KindRecyclable, KindCompost, KindLandfill, KindHazardous:
		return true
	}
	return false
}

// WasteCategory описывает категорию отходов из справочника.
type WasteCategory struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Kind        CategoryKind `json:"kind" yaml:"kind"`
	Color       string       `json:"color" yaml:"color"`
	Icon        string       `json:"icon" yaml:"icon"`
	Description string       `json:"description" yaml:"description"`
	BinColor    BinColor     `json:"binColor" yaml:"binColor"`
	Items       []string     `json:"items" yaml:"items"`
	Quotes      []string     `json:"-" yaml:"quotes"`
	ScanPoints  int          `json:"-" yaml:"scanPoints"`
}

// Item описывает предмет, который может вернуть классификатор.
type Item struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	Category   CategoryKind `json:"category" yaml:"category"`
	CategoryID string       `json:"categoryId" yaml:"categoryId"`
	BinColor   BinColor     `json:"binColor" yaml:"binColor"`
	Points     int          `json:"points" yaml:"points"`
	Tips       []string     `json:"tips" yaml:"tips"`
}

// ImageHandle содержит непрозрачную ссылку на сделанную фотографию.
type ImageHandle string

// ScanResult описывает результат одной завершённой классификации. После создания не изменяется.
type ScanResult struct {
	ID        string      `json:"id"`
	Item      Item        `json:"item"`
	ImageURI  ImageHandle `json:"imageUri"`
	Timestamp time.Time   `json:"timestamp"`
	// Quote заполняется политикой round-robin.
	Quote string `json:"quote,omitempty"`
}

// Badge описывает награду пользователя. Unlocked всегда вычисляется из текущих очков.
type Badge struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Icon      string `json:"icon" yaml:"icon"`
	Threshold int    `json:"threshold" yaml:"-"`
	Unlocked  bool   `json:"unlocked" yaml:"-"`
}

// Impact содержит оценку экологического эффекта от правильной сортировки.
type Impact struct {
	CO2SavedKg        float64 `json:"co2Saved"`
	WaterSavedLiters  float64 `json:"waterSaved"`
	EnergySavedKWh    float64 `json:"energySaved"`
	LandfillReducedKg float64 `json:"landfillReduced"`
}

// UserProfile описывает профиль пользователя устройства.
type UserProfile struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	JoinDate     string  `json:"joinDate"`
	Points       int     `json:"points"`
	Scans        int     `json:"scans"`
	CorrectSorts int     `json:"correctSorts"`
	Badges       []Badge `json:"badges"`
	Impact       Impact  `json:"impact"`
}

// Settings содержит пользовательские настройки приложения.
type Settings struct {
	Notifications    bool `json:"notifications"`
	DarkMode         bool `json:"darkMode"`
	LocationServices bool `json:"locationServices"`
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		Notifications:    true,
		DarkMode:         false,
		LocationServices: true,
	}
}
