package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/repositories"
)

// FingerprintService выводит стабильный ключ личности (email/телефон)
// и проверяет его по существующим регистрациям турнира.
//
// Resolve обязан выполняться непосредственно перед любой записью, создающей
// Registration или Transaction: проверка при отрисовке экрана успевает
// устареть (stale-read protection).
type FingerprintService struct {
	registrationRepo repositories.RegistrationRepository
}

func NewFingerprintService(registrationRepo repositories.RegistrationRepository) *FingerprintService {
	return &FingerprintService{registrationRepo: registrationRepo}
}

// NormalizeEmail приводит email к каноничному виду: обрезка пробелов,
// нижний регистр.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone оставляет в номере только цифры.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve ищет регистрацию по нормализованному email, затем по телефону.
// Возвращает первую найденную: email главнее телефона (tie-break). nil без
// ошибки означает отсутствие совпадений — можно создавать новую запись.
//
// Политика по найденной записи — на вызывающей стороне:
// paid == true  -> новая запись запрещена, показать существующую ("paid wins");
// paid == false -> переиспользовать эту запись для повторной оплаты.
func (s *FingerprintService) Resolve(ctx context.Context, tournamentID, email, phone string) (*models.Registration, error) {
	email = NormalizeEmail(email)
	phone = NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, ErrIdentityRequired
	}

	if email != "" {
		reg, err := s.registrationRepo.FindByEmail(ctx, tournamentID, email)
		if err != nil && !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, fmt.Errorf("fingerprint lookup by email: %w", err)
		}
		if reg != nil {
			return reg, nil
		}
	}

	if phone != "" {
		reg, err := s.registrationRepo.FindByPhone(ctx, tournamentID, phone)
		if err != nil && !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, fmt.Errorf("fingerprint lookup by phone: %w", err)
		}
		if reg != nil {
			return reg, nil
		}
	}

	return nil, nil
}
