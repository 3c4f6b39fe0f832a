// Package validation содержит функции валидации входных данных.
package validation

import (
	"encoding/json"
	"net/mail"
	"regexp"
	"strings"
)

var invoiceNumberRe = regexp.MustCompile(`^INV-\d{8}-\d{4}$`)

// IsValidEmail проверяет синтаксическую корректность адреса электронной почты.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// ParseAddress допускает форму "Имя <адрес>", формы ввода её не используют.
	return addr.Address == email
}

// IsValidInvoiceNumber проверяет корректность номера счёта вида INV-ГГГГММДД-NNNN.
func IsValidInvoiceNumber(number string) bool {
	return invoiceNumberRe.MatchString(number)
}

// Категории неисправностей, принимаемые формой заявки.
var knownIssueTypes = map[string]struct{}{
	"Hardware":      {},
	"Software":      {},
	"Virus/Malware": {},
	"Data Recovery": {},
	"Network":       {},
	"Upgrade":       {},
	"Maintenance":   {},
	"Other":         {},
}

// NormalizeIssueTypes отбрасывает пустые, неизвестные и повторяющиеся
// категории неисправностей, сохраняя порядок первого вхождения.
func NormalizeIssueTypes(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	res := make([]string, 0, len(types))
	for _, it := range types {
		it = strings.TrimSpace(it)
		if _, known := knownIssueTypes[it]; !known {
			continue
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		res = append(res, it)
	}
	return res
}

// StringList принимает в JSON как массив строк, так и одиночную строку.
// Формы исходного приложения передают повторяющиеся поля то списком,
// то скаляром; нормализация выполняется один раз при разборе запроса.
type StringList []string

// UnmarshalJSON реализует json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}

	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = StringList{one}
	return nil
}
