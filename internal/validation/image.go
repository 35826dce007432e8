// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/http"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength ограничивает длину отображаемого имени профиля.
const MaxNameLength = 64

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage определяет тип изображения по содержимому и возвращает расширение файла.
// Для данных, не являющихся поддерживаемым изображением, ok == false.
func DetectImage(data []byte) (contentType, ext string, ok bool) {
	if len(data) == 0 {
		return "", "", false
	}
	contentType = http.DetectContentType(data)
	ext, ok = imageExtensions[contentType]
	if !ok {
		return contentType, "", false
	}
	return contentType, ext, true
}

// ContentTypeForExt возвращает тип содержимого для расширения сохранённого снимка.
func ContentTypeForExt(ext string) (string, bool) {
	for ct, e := range imageExtensions {
		if e == strings.ToLower(ext) {
			return ct, true
		}
	}
	return "", false
}

// IsValidPhotoName проверяет имя файла снимка: только буквы, цифры, дефис и одна точка.
func IsValidPhotoName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	dots := 0
	for _, ch := range name {
		switch {
		case ch == '.':
			dots++
		case ch == '-':
		case ch < unicode.MaxASCII && (unicode.IsLetter(ch) || unicode.IsDigit(ch)):
		default:
			return false
		}
	}
	return dots == 1 && !strings.HasPrefix(name, ".")
}

// IsValidDisplayName проверяет отображаемое имя профиля.
func IsValidDisplayName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return false
	}
	for _, ch := range name {
		if unicode.IsControl(ch) {
			return false
		}
	}
	return true
}

// IsValidEmail проверяет адрес электронной почты. Пустой адрес допустим.
func IsValidEmail(email string) bool {
	if email == "" {
		return true
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
