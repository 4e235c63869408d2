package sweeper

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCron — расписание по умолчанию: каждые 15 минут.
const DefaultCron = "*/15 * * * *"

// cronParser — парсер cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := parseCron(cronExpr)
	return err
}

func parseCron(cronExpr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return schedule, nil
}

// nextRun возвращает следующее время запуска после from (в UTC).
func nextRun(schedule cron.Schedule, from time.Time) time.Time {
	return schedule.Next(from).UTC()
}
