package validation

import (
	"fmt"
	"unicode/utf8"
)

// ValidateSubjectID проверяет идентификатор пользователя.
// Формат идентификатора задает сервер верификации, поэтому проверяем только
// что он задан и является корректной UTF-8 строкой.
func ValidateSubjectID(id string) error {
	if id == "" {
		return fmt.Errorf("subject_id cannot be empty")
	}

	if !utf8.ValidString(id) {
		return fmt.Errorf("subject_id must be valid UTF-8")
	}

	return nil
}

// ValidateDisplayName проверяет отображаемое имя (может быть пустым)
func ValidateDisplayName(name string) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("display_name must be valid UTF-8")
	}

	return nil
}

// ValidateWalletAddress проверяет адрес кошелька, если он задан.
// Пустая строка допустима: сервер возвращает string|null.
func ValidateWalletAddress(address *string) error {
	if address == nil {
		return nil
	}

	if !utf8.ValidString(*address) {
		return fmt.Errorf("wallet_address must be valid UTF-8")
	}

	return nil
}
