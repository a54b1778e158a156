package engine

import (
	"strconv"
	"strings"
	"time"
)

// IsDue проверяет, совпадает ли 5-польное cron-выражение с моментом now.
//
// Поля: минута, час, день месяца, месяц, день недели (0 = воскресенье).
// Каждое поле поддерживает "*", списки через запятую, диапазоны "a-b"
// и шаг "base/step" (base="*" означает 0).
//
// Некорректное выражение (не 5 полей, нечисловой токен) даёт false и
// никогда не паникует: сломанная конфигурация не должна ронять тик.
func IsDue(cronExpr string, now time.Time) bool {
	fields := strings.Fields(strings.TrimSpace(cronExpr))
	if len(fields) != 5 {
		return false
	}

	values := [5]int{
		now.Minute(),
		now.Hour(),
		now.Day(),
		int(now.Month()),
		int(now.Weekday()),
	}

	for i, field := range fields {
		if !matchField(field, values[i]) {
			return false
		}
	}
	return true
}

// matchField проверяет одно поле cron-выражения против значения.
func matchField(field string, value int) bool {
	if field == "*" {
		return true
	}

	// Список: "1,15,30"
	if strings.Contains(field, ",") {
		for _, part := range strings.Split(field, ",") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return false
			}
			if n == value {
				return true
			}
		}
		return false
	}

	// Диапазон: "9-17"
	if strings.Contains(field, "-") {
		bounds := strings.SplitN(field, "-", 2)
		lo, err1 := strconv.Atoi(bounds[0])
		hi, err2 := strconv.Atoi(bounds[1])
		if err1 != nil || err2 != nil {
			return false
		}
		return value >= lo && value <= hi
	}

	// Шаг: "*/5" или "3/5"
	if strings.Contains(field, "/") {
		parts := strings.SplitN(field, "/", 2)
		start := 0
		if parts[0] != "*" {
			n, err := strconv.Atoi(parts[0])
			if err != nil {
				return false
			}
			start = n
		}
		step, err := strconv.Atoi(parts[1])
		if err != nil || step <= 0 {
			return false
		}
		return (value-start)%step == 0
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return false
	}
	return n == value
}

// SameMinuteSlot возвращает true, если оба момента попадают в один
// календарный минутный слот. Используется планировщиком для гарантии
// «не чаще одного срабатывания на минуту».
func SameMinuteSlot(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}
