// Package student содержит доменную модель табеля успеваемости ученика.
//
// Пакет определяет:
//
//   - Сущности: Student, ExamResult, SubjectMark, AttendanceRecord
//   - Value Objects: Grade, Result, Subject, Section, ExamSlot, Month
//   - Производные значения (view-model accessors): DeriveResult,
//     AttendancePercentage, SubjectSummary, ResultConflicts
//   - Roster: неизменяемый список учеников, построенный один раз при старте
//   - Интерфейс чтения: Reader
//
// # Архитектурные принципы
//
//  1. Все функции чистые и синхронные, без ввода-вывода
//  2. Roster read-only после построения, безопасен для конкурентного чтения без блокировок
//  3. Отметки хранятся строками; числовая интерпретация остаётся потребителю
//
// # Пример
//
//	res := roster.Parse(blob)
//	r, err := student.NewRoster(res.Students)
//	s, err := r.Get("std-3")
//	pct := s.Attendance.Percentage()
//	summary := student.SubjectSummary(s.SA1)
package student
