package student

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт чтения учеников. Единственная реализация сейчас - Roster,
// построенный из встроенных данных; интерфейс позволяет подменять его в тестах.
// ══════════════════════════════════════════════════════════════════════════════

// Reader определяет операции чтения учеников.
type Reader interface {
	// GetByID возвращает ученика по ID.
	// Возвращает ErrStudentNotFound, если ученик не найден.
	GetByID(ctx context.Context, id string) (*Student, error)

	// List возвращает учеников с фильтрацией и пагинацией.
	// Возвращает ErrInvalidSection для неизвестной секции.
	List(ctx context.Context, opts ListOptions) ([]*Student, error)
}

// ListOptions содержит параметры выборки.
type ListOptions struct {
	// Section ограничивает выборку одной секцией. Пусто - все секции.
	Section Section

	// Query - подстрока имени без учёта регистра.
	Query string

	// Limit - максимальное количество записей (0 = без ограничения).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// DefaultListOptions возвращает опции по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 100}
}

func (o ListOptions) apply(in []*Student) []*Student {
	if o.Offset > 0 {
		if o.Offset >= len(in) {
			return nil
		}
		in = in[o.Offset:]
	}
	if o.Limit > 0 && o.Limit < len(in) {
		in = in[:o.Limit]
	}
	return in
}
